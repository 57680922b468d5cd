package service

import (
	"fmt"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

// configurationError tags registry failures so handlers answer 500 CONFIGURATION_ERROR while the
// approval sentinel stays reachable through errors.Is.
func configurationError(err error) error {
	return appErrors.WrapAs(err, appErrors.ErrConfiguration, err.Error())
}

// reviewScope resolves the organization filter of a signatory, failing for an adviser account that
// is not linked to an organization.
func reviewScope(actor models.Actor) (*int64, error) {
	scope, ok := actor.ReviewScope()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "adviser account is not linked to an organization")
	}
	return scope, nil
}

// queueTargets lists the (kind, stage) pairs a role decides.
func queueTargets(registry *approval.Registry, role approval.Role) ([]models.QueueTarget, error) {
	entry, err := registry.Lookup(role)
	if err != nil {
		return nil, configurationError(err)
	}
	kinds := entry.Kinds()
	targets := make([]models.QueueTarget, 0, len(kinds))
	for _, kind := range kinds {
		binding, _ := entry.Binding(kind)
		targets = append(targets, models.QueueTarget{Kind: kind, Stage: binding.Stage, Requires: binding.Requires})
	}
	if len(targets) == 0 {
		return nil, configurationError(fmt.Errorf("%w: %s reviews no request kind", approval.ErrInvalidRegistry, role))
	}
	return targets, nil
}

// authorizeView allows the owner, and signatories whose role reviews the request's kind inside
// their organization scope.
func authorizeView(registry *approval.Registry, actor models.Actor, req *models.Request) error {
	if req.OwnerID == actor.UserID {
		return nil
	}
	if actor.Role == approval.RoleOfficer || actor.Role == "" {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another officer")
	}
	entry, err := registry.Lookup(actor.Role)
	if err != nil {
		return configurationError(err)
	}
	if !entry.Reviews(req.Kind) {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s does not review %s requests", actor.Role, req.Kind))
	}
	scope, err := reviewScope(actor)
	if err != nil {
		return err
	}
	if scope != nil && (req.OrganizationID == nil || *req.OrganizationID != *scope) {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another organization")
	}
	return nil
}
