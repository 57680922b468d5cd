package approval

import "fmt"

// Role identifies a signatory (or the submitting officer) in the approval workflow.
type Role string

const (
	RoleAdviser          Role = "ADVISER"
	RoleDean             Role = "DEAN"
	RoleAdminServices    Role = "ADMIN_SERVICES"
	RoleOSAFA            Role = "OSAFA"
	RoleCFDO             Role = "CFDO"
	RoleAFO              Role = "AFO"
	RoleVPAcademic       Role = "VP_ACADEMIC"
	RoleVPAdministration Role = "VP_ADMINISTRATION"

	// RoleOfficer submits requests and owns no stage.
	RoleOfficer Role = "OFFICER"
)

// Kind distinguishes the two request families.
type Kind string

const (
	KindFunding Kind = "FUNDING"
	KindVenue   Kind = "VENUE"
)

// Valid reports whether the kind is one of the known request families.
func (k Kind) Valid() bool {
	return k == KindFunding || k == KindVenue
}

// Stage is one signatory position in a chain.
type Stage int

const (
	StageAdviser Stage = iota + 1
	StageDean
	StageAdminServices
	StageOSAFA
	StageCFDO
	StageAFO
	StageVPAcademic
	StageVPAdministration
)

// AllStages lists every stage in display order.
var AllStages = []Stage{
	StageAdviser,
	StageDean,
	StageAdminServices,
	StageOSAFA,
	StageCFDO,
	StageAFO,
	StageVPAcademic,
	StageVPAdministration,
}

// Label returns the human readable stage name used in notifications.
func (s Stage) Label() string {
	switch s {
	case StageAdviser:
		return "Adviser"
	case StageDean:
		return "Dean"
	case StageAdminServices:
		return "Admin Services"
	case StageOSAFA:
		return "OSAFA"
	case StageCFDO:
		return "CFDO"
	case StageAFO:
		return "AFO"
	case StageVPAcademic:
		return "VP-Academic"
	case StageVPAdministration:
		return "VP-Administration"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	return s.Label()
}

// Role returns the signatory role owning the stage.
func (s Stage) Role() Role {
	switch s {
	case StageAdviser:
		return RoleAdviser
	case StageDean:
		return RoleDean
	case StageAdminServices:
		return RoleAdminServices
	case StageOSAFA:
		return RoleOSAFA
	case StageCFDO:
		return RoleCFDO
	case StageAFO:
		return RoleAFO
	case StageVPAcademic:
		return RoleVPAcademic
	case StageVPAdministration:
		return RoleVPAdministration
	default:
		return ""
	}
}

// Binding ties a role to its stage for one kind along with the stages it waits on.
type Binding struct {
	Stage    Stage
	Requires []Stage
}

// Entry is the registry row for one role.
type Entry struct {
	Role    Role
	Funding *Binding
	Venue   *Binding
}

// Binding returns the stage binding of the entry for the given kind.
func (e Entry) Binding(kind Kind) (Binding, bool) {
	switch kind {
	case KindFunding:
		if e.Funding != nil {
			return *e.Funding, true
		}
	case KindVenue:
		if e.Venue != nil {
			return *e.Venue, true
		}
	}
	return Binding{}, false
}

// Reviews reports whether the role participates in the kind's chain.
func (e Entry) Reviews(kind Kind) bool {
	_, ok := e.Binding(kind)
	return ok
}

// Kinds lists the request kinds reviewed by the role.
func (e Entry) Kinds() []Kind {
	kinds := make([]Kind, 0, 2)
	if e.Funding != nil {
		kinds = append(kinds, KindFunding)
	}
	if e.Venue != nil {
		kinds = append(kinds, KindVenue)
	}
	return kinds
}
