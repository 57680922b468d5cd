package approval

import (
	"strings"
	"time"
)

// Status is the value held by a single stage and by the request-level final status.
// The empty value marks a stage outside the request's chain.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Decided reports whether the status is terminal.
func (s Status) Decided() bool {
	return s == StatusApproved || s == StatusRejected
}

// BudgetStatus tracks fund availability on funding requests.
type BudgetStatus string

const (
	BudgetNone       BudgetStatus = ""
	BudgetProcessing BudgetStatus = "BUDGET_PROCESSING"
	BudgetAvailable  BudgetStatus = "BUDGET_AVAILABLE"
)

// Outcome is a reviewer's decision input.
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeRejected Outcome = "REJECTED"
)

// ParseOutcome normalises user supplied decision values.
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "APPROVED", "APPROVE":
		return OutcomeApproved, nil
	case "REJECTED", "REJECT":
		return OutcomeRejected, nil
	default:
		return "", ErrInvalidDecision
	}
}

// StageRecord is the status, decision timestamp and remark of one stage.
type StageRecord struct {
	Status    Status     `json:"status,omitempty"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
	DecidedBy *int64     `json:"decidedBy,omitempty"`
	Remark    *string    `json:"remark,omitempty"`
}

// Stages holds one record per signatory stage.
type Stages struct {
	Adviser          StageRecord `json:"adviser"`
	Dean             StageRecord `json:"dean"`
	AdminServices    StageRecord `json:"adminServices"`
	OSAFA            StageRecord `json:"osafa"`
	CFDO             StageRecord `json:"cfdo"`
	AFO              StageRecord `json:"afo"`
	VPAcademic       StageRecord `json:"vpAcademic"`
	VPAdministration StageRecord `json:"vpAdministration"`
}

// Record returns the record of a stage, or nil for an unknown stage.
func (s *Stages) Record(stage Stage) *StageRecord {
	switch stage {
	case StageAdviser:
		return &s.Adviser
	case StageDean:
		return &s.Dean
	case StageAdminServices:
		return &s.AdminServices
	case StageOSAFA:
		return &s.OSAFA
	case StageCFDO:
		return &s.CFDO
	case StageAFO:
		return &s.AFO
	case StageVPAcademic:
		return &s.VPAcademic
	case StageVPAdministration:
		return &s.VPAdministration
	default:
		return nil
	}
}

// StatusOf returns the status of a stage; unknown stages read as empty.
func (s Stages) StatusOf(stage Stage) Status {
	if rec := s.Record(stage); rec != nil {
		return rec.Status
	}
	return ""
}

// Snapshot is the approval state of one request.
type Snapshot struct {
	Kind               Kind         `json:"kind"`
	Stages             Stages       `json:"stages"`
	FinalStatus        Status       `json:"finalStatus"`
	BudgetStatus       BudgetStatus `json:"budgetStatus,omitempty"`
	NotificationStatus string       `json:"notificationStatus"`
}

// Decision carries a reviewer's outcome and remark.
type Decision struct {
	Outcome Outcome
	Remark  string
	ActorID int64
	At      time.Time
}

// StageView is a display row for one chain stage.
type StageView struct {
	Stage     Stage      `json:"-"`
	Label     string     `json:"label"`
	Role      Role       `json:"role"`
	Status    Status     `json:"status"`
	Display   string     `json:"display"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
	Remark    *string    `json:"remark,omitempty"`
}
