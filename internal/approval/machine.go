// Package approval holds the role registry and the sequential approval state machine shared by
// funding and venue requests. Everything here is pure: callers load and persist snapshots.
package approval

import (
	"fmt"
	"strings"
	"time"
)

const (
	budgetAvailableStatus = "Budget Available"
	venueApprovedStatus   = "Venue Approved"
)

// Machine evaluates readiness and applies decisions against a registry.
type Machine struct {
	registry *Registry
}

// NewMachine builds a machine for the given registry (nil selects the default table).
func NewMachine(registry *Registry) *Machine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Machine{registry: registry}
}

// Registry exposes the underlying role table.
func (m *Machine) Registry() *Registry {
	return m.registry
}

// NewSnapshot returns the initial state for a freshly submitted request.
func (m *Machine) NewSnapshot(kind Kind) (Snapshot, error) {
	chain, err := m.registry.Chain(kind)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Kind: kind}
	for _, stage := range chain {
		snap.Stages.Record(stage).Status = StatusPending
	}
	m.derive(&snap, chain)
	return snap, nil
}

// IsReady reports whether the role can decide the request now: its own stage is pending, every
// predecessor is approved and no stage of the chain has been rejected.
func (m *Machine) IsReady(snap Snapshot, role Role) (bool, error) {
	binding, err := m.registry.BindingFor(role, snap.Kind)
	if err != nil {
		return false, err
	}
	chain, _ := m.registry.Chain(snap.Kind)
	return m.ready(snap, chain, binding), nil
}

func (m *Machine) ready(snap Snapshot, chain []Stage, binding Binding) bool {
	if snap.Stages.StatusOf(binding.Stage) != StatusPending {
		return false
	}
	if halted(snap, chain) {
		return false
	}
	for _, req := range binding.Requires {
		if snap.Stages.StatusOf(req) != StatusApproved {
			return false
		}
	}
	return true
}

// IsRejectedUpstream reports whether a stage before the role's stage has been rejected.
func (m *Machine) IsRejectedUpstream(snap Snapshot, role Role) (bool, error) {
	binding, err := m.registry.BindingFor(role, snap.Kind)
	if err != nil {
		return false, err
	}
	chain, _ := m.registry.Chain(snap.Kind)
	for _, stage := range chain[:indexOf(chain, binding.Stage)] {
		if snap.Stages.StatusOf(stage) == StatusRejected {
			return true, nil
		}
	}
	return false, nil
}

// ReadyStages returns the stages currently actionable, in chain order.
func (m *Machine) ReadyStages(snap Snapshot) ([]Stage, error) {
	chain, err := m.registry.Chain(snap.Kind)
	if err != nil {
		return nil, err
	}
	return m.readyStages(snap, chain), nil
}

// ReadyRoles returns the roles able to act now. Venue requests report OSAFA and CFDO together
// once Admin Services approves.
func (m *Machine) ReadyRoles(snap Snapshot) ([]Role, error) {
	stages, err := m.ReadyStages(snap)
	if err != nil {
		return nil, err
	}
	roles := make([]Role, 0, len(stages))
	for _, stage := range stages {
		if role, ok := m.registry.Owner(snap.Kind, stage); ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (m *Machine) readyStages(snap Snapshot, chain []Stage) []Stage {
	ready := make([]Stage, 0, 2)
	for _, stage := range chain {
		role, _ := m.registry.Owner(snap.Kind, stage)
		binding, err := m.registry.BindingFor(role, snap.Kind)
		if err != nil {
			continue
		}
		if m.ready(snap, chain, binding) {
			ready = append(ready, stage)
		}
	}
	return ready
}

// NextPendingRole returns the first role able to act, if any.
func (m *Machine) NextPendingRole(snap Snapshot) (Role, bool) {
	stages, err := m.ReadyStages(snap)
	if err != nil || len(stages) == 0 {
		return "", false
	}
	role, ok := m.registry.Owner(snap.Kind, stages[0])
	return role, ok
}

// ApplyDecision validates and applies a role's decision, returning the new snapshot. The input
// snapshot is left untouched.
func (m *Machine) ApplyDecision(snap Snapshot, role Role, decision Decision) (Snapshot, error) {
	if decision.Outcome != OutcomeApproved && decision.Outcome != OutcomeRejected {
		return snap, ErrInvalidDecision
	}
	binding, err := m.registry.BindingFor(role, snap.Kind)
	if err != nil {
		return snap, err
	}
	chain, _ := m.registry.Chain(snap.Kind)

	current := snap.Stages.StatusOf(binding.Stage)
	if current.Decided() {
		return snap, fmt.Errorf("%w: %s already recorded %s", ErrAlreadyDecided, binding.Stage, strings.ToLower(string(current)))
	}
	if !m.ready(snap, chain, binding) {
		return snap, fmt.Errorf("%w: %s is waiting on an earlier stage", ErrNotReady, binding.Stage)
	}

	at := decision.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	next := snap
	rec := next.Stages.Record(binding.Stage)
	rec.Status = Status(decision.Outcome)
	rec.DecidedAt = &at
	if decision.ActorID != 0 {
		actor := decision.ActorID
		rec.DecidedBy = &actor
	}
	rec.Remark = trimmedRemark(decision.Remark)

	m.derive(&next, chain)
	return next, nil
}

// Derive recomputes final, budget and notification status from stage values.
func (m *Machine) Derive(snap Snapshot) (Snapshot, error) {
	chain, err := m.registry.Chain(snap.Kind)
	if err != nil {
		return snap, err
	}
	m.derive(&snap, chain)
	return snap, nil
}

func (m *Machine) derive(snap *Snapshot, chain []Stage) {
	terminal := chain[len(chain)-1]
	switch {
	case halted(*snap, chain):
		snap.FinalStatus = StatusRejected
	case snap.Stages.StatusOf(terminal) == StatusApproved:
		snap.FinalStatus = StatusApproved
	default:
		snap.FinalStatus = StatusPending
	}
	snap.BudgetStatus = m.budgetStatus(*snap, chain)
	snap.NotificationStatus = m.notificationStatus(*snap, chain)
}

func (m *Machine) budgetStatus(snap Snapshot, chain []Stage) BudgetStatus {
	if snap.Kind != KindFunding {
		return BudgetNone
	}
	switch snap.Stages.StatusOf(StageAFO) {
	case StatusApproved:
		return BudgetAvailable
	case StatusPending:
		binding, err := m.registry.BindingFor(RoleAFO, snap.Kind)
		if err == nil && m.ready(snap, chain, binding) {
			return BudgetProcessing
		}
	}
	return BudgetNone
}

func (m *Machine) notificationStatus(snap Snapshot, chain []Stage) string {
	for _, stage := range chain {
		if snap.Stages.StatusOf(stage) == StatusRejected {
			return "Rejected by " + stage.Label()
		}
	}
	if snap.FinalStatus == StatusApproved {
		if snap.Kind == KindFunding {
			return budgetAvailableStatus
		}
		return venueApprovedStatus
	}
	ready := m.readyStages(snap, chain)
	if len(ready) == 0 {
		return string(StatusPending)
	}
	labels := make([]string, len(ready))
	for i, stage := range ready {
		labels[i] = stage.Label()
	}
	return "Awaiting " + strings.Join(labels, " and ") + " Approval"
}

// StageViews renders the chain for display. Pending stages of a halted request show "-".
func (m *Machine) StageViews(snap Snapshot) ([]StageView, error) {
	chain, err := m.registry.Chain(snap.Kind)
	if err != nil {
		return nil, err
	}
	stopped := halted(snap, chain)
	views := make([]StageView, 0, len(chain))
	for _, stage := range chain {
		rec := snap.Stages.Record(stage)
		role, _ := m.registry.Owner(snap.Kind, stage)
		view := StageView{
			Stage:     stage,
			Label:     stage.Label(),
			Role:      role,
			Status:    rec.Status,
			DecidedAt: rec.DecidedAt,
			Remark:    rec.Remark,
		}
		switch {
		case rec.Status == StatusApproved:
			view.Display = "Approved"
		case rec.Status == StatusRejected:
			view.Display = "Rejected"
		case stopped:
			view.Display = "-"
		default:
			view.Display = "Pending"
		}
		views = append(views, view)
	}
	return views, nil
}

func halted(snap Snapshot, chain []Stage) bool {
	for _, stage := range chain {
		if snap.Stages.StatusOf(stage) == StatusRejected {
			return true
		}
	}
	return false
}

func trimmedRemark(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
