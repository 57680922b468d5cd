package approval

import (
	"errors"
	"fmt"
)

// Registry is the static role table consumed by the state machine and the queue builder.
type Registry struct {
	entries map[Role]Entry
	chains  map[Kind][]Stage
	owners  map[Kind]map[Stage]Role
}

// NewRegistry validates the entries against the chains and builds a registry.
func NewRegistry(entries []Entry, chains map[Kind][]Stage) (*Registry, error) {
	reg := &Registry{
		entries: make(map[Role]Entry, len(entries)),
		chains:  make(map[Kind][]Stage, len(chains)),
		owners:  make(map[Kind]map[Stage]Role, len(chains)),
	}
	for kind, chain := range chains {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
		if len(chain) == 0 {
			return nil, fmt.Errorf("%w: empty chain for %s", ErrInvalidRegistry, kind)
		}
		reg.chains[kind] = append([]Stage(nil), chain...)
		reg.owners[kind] = make(map[Stage]Role, len(chain))
	}

	for _, entry := range entries {
		if entry.Role == "" {
			return nil, fmt.Errorf("%w: entry without role", ErrInvalidRegistry)
		}
		if _, dup := reg.entries[entry.Role]; dup {
			return nil, fmt.Errorf("%w: duplicate role %s", ErrInvalidRegistry, entry.Role)
		}
		for _, kind := range entry.Kinds() {
			binding, _ := entry.Binding(kind)
			if err := reg.bind(kind, entry.Role, binding); err != nil {
				return nil, err
			}
		}
		reg.entries[entry.Role] = entry
	}

	for kind, chain := range reg.chains {
		for i, stage := range chain {
			if _, ok := reg.owners[kind][stage]; !ok {
				return nil, fmt.Errorf("%w: %s stage %s has no role", ErrInvalidRegistry, kind, stage)
			}
			if i == 0 {
				role := reg.owners[kind][stage]
				binding, _ := reg.entries[role].Binding(kind)
				if len(binding.Requires) > 0 {
					return nil, fmt.Errorf("%w: first %s stage %s cannot wait on another stage", ErrInvalidRegistry, kind, stage)
				}
			}
		}
	}
	return reg, nil
}

func (r *Registry) bind(kind Kind, role Role, binding Binding) error {
	chain, ok := r.chains[kind]
	if !ok {
		return fmt.Errorf("%w: role %s bound to unconfigured kind %s", ErrInvalidRegistry, role, kind)
	}
	pos := indexOf(chain, binding.Stage)
	if pos < 0 {
		return fmt.Errorf("%w: role %s stage %s is not part of the %s chain", ErrInvalidRegistry, role, binding.Stage, kind)
	}
	if owner, taken := r.owners[kind][binding.Stage]; taken {
		return fmt.Errorf("%w: %s stage %s bound to both %s and %s", ErrInvalidRegistry, kind, binding.Stage, owner, role)
	}
	for _, req := range binding.Requires {
		reqPos := indexOf(chain, req)
		if reqPos < 0 || reqPos >= pos {
			return fmt.Errorf("%w: %s stage %s waits on %s which does not precede it", ErrInvalidRegistry, kind, binding.Stage, req)
		}
	}
	r.owners[kind][binding.Stage] = role
	return nil
}

// Lookup returns the registry row for a role.
func (r *Registry) Lookup(role Role) (Entry, error) {
	entry, ok := r.entries[role]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnconfiguredRole, role)
	}
	return entry, nil
}

// Chain returns the ordered stages of a kind.
func (r *Registry) Chain(kind Kind) ([]Stage, error) {
	chain, ok := r.chains[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return chain, nil
}

// BindingFor resolves the binding of a role for a kind.
func (r *Registry) BindingFor(role Role, kind Kind) (Binding, error) {
	entry, err := r.Lookup(role)
	if err != nil {
		return Binding{}, err
	}
	if _, err := r.Chain(kind); err != nil {
		return Binding{}, err
	}
	binding, ok := entry.Binding(kind)
	if !ok {
		return Binding{}, fmt.Errorf("%w: %s does not review %s requests", ErrRoleNotInChain, role, kind)
	}
	return binding, nil
}

// Owner returns the role deciding a stage of a kind.
func (r *Registry) Owner(kind Kind, stage Stage) (Role, bool) {
	owners, ok := r.owners[kind]
	if !ok {
		return "", false
	}
	role, ok := owners[stage]
	return role, ok
}

// Roles lists every configured role.
func (r *Registry) Roles() []Role {
	roles := make([]Role, 0, len(r.entries))
	for _, stage := range AllStages {
		if _, ok := r.entries[stage.Role()]; ok {
			roles = append(roles, stage.Role())
		}
	}
	return roles
}

// IsConfigurationError reports whether err stems from the registry rather than from request state.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnconfiguredRole) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrRoleNotInChain) ||
		errors.Is(err, ErrInvalidRegistry)
}

var defaultRegistry = mustRegistry(DefaultEntries(), DefaultChains())

// DefaultRegistry returns the institution's role table.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// DefaultChains returns the stage order of each request kind.
func DefaultChains() map[Kind][]Stage {
	return map[Kind][]Stage{
		KindFunding: {StageAdviser, StageDean, StageOSAFA, StageAFO},
		KindVenue:   {StageDean, StageAdminServices, StageOSAFA, StageCFDO, StageAFO, StageVPAcademic, StageVPAdministration},
	}
}

// DefaultEntries returns the role bindings. OSAFA and CFDO both follow Admin Services on venue
// requests and AFO waits on both.
func DefaultEntries() []Entry {
	return []Entry{
		{Role: RoleAdviser, Funding: &Binding{Stage: StageAdviser}},
		{
			Role:    RoleDean,
			Funding: &Binding{Stage: StageDean, Requires: []Stage{StageAdviser}},
			Venue:   &Binding{Stage: StageDean},
		},
		{Role: RoleAdminServices, Venue: &Binding{Stage: StageAdminServices, Requires: []Stage{StageDean}}},
		{
			Role:    RoleOSAFA,
			Funding: &Binding{Stage: StageOSAFA, Requires: []Stage{StageDean}},
			Venue:   &Binding{Stage: StageOSAFA, Requires: []Stage{StageAdminServices}},
		},
		{Role: RoleCFDO, Venue: &Binding{Stage: StageCFDO, Requires: []Stage{StageAdminServices}}},
		{
			Role:    RoleAFO,
			Funding: &Binding{Stage: StageAFO, Requires: []Stage{StageOSAFA}},
			Venue:   &Binding{Stage: StageAFO, Requires: []Stage{StageOSAFA, StageCFDO}},
		},
		{Role: RoleVPAcademic, Venue: &Binding{Stage: StageVPAcademic, Requires: []Stage{StageAFO}}},
		{Role: RoleVPAdministration, Venue: &Binding{Stage: StageVPAdministration, Requires: []Stage{StageVPAcademic}}},
	}
}

func mustRegistry(entries []Entry, chains map[Kind][]Stage) *Registry {
	reg, err := NewRegistry(entries, chains)
	if err != nil {
		panic(err)
	}
	return reg
}

func indexOf(chain []Stage, stage Stage) int {
	for i, s := range chain {
		if s == stage {
			return i
		}
	}
	return -1
}
