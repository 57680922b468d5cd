package approval

import "errors"

var (
	// ErrUnconfiguredRole is returned for roles missing from the registry.
	ErrUnconfiguredRole = errors.New("approval: role not configured")
	// ErrUnknownKind is returned for request kinds without a chain.
	ErrUnknownKind = errors.New("approval: unknown request kind")
	// ErrRoleNotInChain is returned when a role does not review the request's kind.
	ErrRoleNotInChain = errors.New("approval: role does not review this request kind")
	// ErrInvalidRegistry is returned by NewRegistry for inconsistent tables.
	ErrInvalidRegistry = errors.New("approval: invalid registry")

	// ErrNotReady is returned when the role's predecessors have not all approved.
	ErrNotReady = errors.New("approval: stage not ready")
	// ErrAlreadyDecided is returned when the role's stage is no longer pending.
	ErrAlreadyDecided = errors.New("approval: stage already decided")
	// ErrInvalidDecision is returned for outcomes other than approve or reject.
	ErrInvalidDecision = errors.New("approval: invalid decision value")
)
