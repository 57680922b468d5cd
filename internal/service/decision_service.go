package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/internal/repository"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

type decisionStore interface {
	RecordDecision(ctx context.Context, id int64, stage approval.Stage, apply func(*models.Request) error) (*models.Request, error)
}

// DecisionService is the only writer of stage status.
type DecisionService struct {
	repo      decisionStore
	machine   *approval.Machine
	audit     auditWriter
	cache     queueInvalidator
	notifier  Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewDecisionService wires the decision recorder. audit, cache, notifier and metrics are optional.
func NewDecisionService(
	repo decisionStore,
	machine *approval.Machine,
	audit auditWriter,
	cache queueInvalidator,
	notifier Notifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *DecisionService {
	if machine == nil {
		machine = approval.NewMachine(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionService{
		repo:      repo,
		machine:   machine,
		audit:     audit,
		cache:     cache,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Record applies the caller's decision to their stage of the request. State machine refusals
// come back unchanged in meaning; nothing is published unless the write committed.
func (s *DecisionService) Record(ctx context.Context, actor models.Actor, requestID int64, req dto.DecisionRequest) (*dto.DecisionResponse, error) {
	outcome, err := approval.ParseOutcome(req.Decision)
	if err != nil {
		return nil, s.fail(appErrors.WrapAs(err, appErrors.ErrInvalidDecision, ""))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, s.fail(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload"))
	}
	if actor.Role == approval.RoleOfficer {
		return nil, s.fail(appErrors.Clone(appErrors.ErrForbidden, "officers do not review requests"))
	}
	stage, err := s.stageOf(actor.Role)
	if err != nil {
		return nil, s.fail(err)
	}

	decision := approval.Decision{
		Outcome: outcome,
		Remark:  req.Remark,
		ActorID: actor.UserID,
		At:      s.now().UTC(),
	}
	updated, err := s.repo.RecordDecision(ctx, requestID, stage, func(current *models.Request) error {
		if err := checkDecisionScope(actor, current); err != nil {
			return err
		}
		next, err := s.machine.ApplyDecision(current.Approval, actor.Role, decision)
		if err != nil {
			return err
		}
		current.Approval = next
		return nil
	})
	if err != nil {
		return nil, s.fail(s.translate(err))
	}

	s.afterCommit(ctx, actor, updated, stage, decision)

	return &dto.DecisionResponse{
		RequestID:          updated.ID,
		Stage:              stage.Label(),
		Outcome:            outcome,
		FinalStatus:        updated.Approval.FinalStatus,
		BudgetStatus:       updated.Approval.BudgetStatus,
		NotificationStatus: updated.Approval.NotificationStatus,
		DecidedAt:          decision.At,
	}, nil
}

// stageOf resolves the stage a role owns. A role keeps the same stage across kinds.
func (s *DecisionService) stageOf(role approval.Role) (approval.Stage, error) {
	entry, err := s.machine.Registry().Lookup(role)
	if err != nil {
		return 0, configurationError(err)
	}
	for _, kind := range entry.Kinds() {
		binding, _ := entry.Binding(kind)
		return binding.Stage, nil
	}
	return 0, configurationError(fmt.Errorf("%w: %s reviews no request kind", approval.ErrInvalidRegistry, role))
}

func (s *DecisionService) afterCommit(ctx context.Context, actor models.Actor, updated *models.Request, stage approval.Stage, decision approval.Decision) {
	if s.audit != nil {
		writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionStageDecision, updated.ID, map[string]interface{}{
			"stage":               stage.Label(),
			"outcome":             decision.Outcome,
			"remark":              strings.TrimSpace(decision.Remark),
			"final_status":        updated.Approval.FinalStatus,
			"notification_status": updated.Approval.NotificationStatus,
		})
	}
	if s.cache != nil {
		if err := s.cache.InvalidateQueues(ctx); err != nil {
			s.logger.Warn("failed to invalidate queue cache", zap.Error(err))
		}
	}
	s.metrics.RecordDecision(string(updated.Kind), stage.Label(), string(decision.Outcome))

	s.logger.Info("stage decision recorded",
		zap.Int64("request_id", updated.ID),
		zap.String("stage", stage.Label()),
		zap.String("outcome", string(decision.Outcome)),
		zap.Int64("actor_id", actor.UserID),
		zap.String("notification_status", updated.Approval.NotificationStatus),
	)

	if s.notifier == nil {
		return
	}
	var nextRoles []approval.Role
	if updated.Approval.FinalStatus == approval.StatusPending {
		nextRoles, _ = s.machine.ReadyRoles(updated.Approval)
	}
	event := Event{
		RequestID:          updated.ID,
		Kind:               updated.Kind,
		Title:              updated.Title,
		Role:               actor.Role,
		NotificationStatus: updated.Approval.NotificationStatus,
		RecipientID:        updated.OwnerID,
		OrganizationID:     updated.OrganizationID,
		NextRoles:          nextRoles,
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish decision notification", zap.Int64("request_id", updated.ID), zap.Error(err))
	}
}

// translate maps store and state machine errors onto API errors without losing the cause.
func (s *DecisionService) translate(err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	case errors.Is(err, approval.ErrInvalidDecision):
		return appErrors.WrapAs(err, appErrors.ErrInvalidDecision, "")
	case errors.Is(err, approval.ErrRoleNotInChain):
		return appErrors.WrapAs(err, appErrors.ErrForbidden, "your role does not review this kind of request")
	case approval.IsConfigurationError(err):
		return configurationError(err)
	case errors.Is(err, approval.ErrAlreadyDecided):
		return appErrors.WrapAs(err, appErrors.ErrAlreadyDecided, "")
	case errors.Is(err, approval.ErrNotReady):
		return appErrors.WrapAs(err, appErrors.ErrNotReady, "")
	case errors.Is(err, repository.ErrStageConflict):
		return appErrors.WrapAs(fmt.Errorf("%w: %w", approval.ErrAlreadyDecided, err), appErrors.ErrAlreadyDecided, "")
	default:
		return appErrors.WrapAs(err, appErrors.ErrPersistence, "")
	}
}

func (s *DecisionService) fail(err error) error {
	if appErr := appErrors.FromError(err); appErr != nil {
		s.metrics.RecordDecisionError(appErr.Code)
	}
	return err
}

// checkDecisionScope keeps organization-scoped signatories inside their organization.
func checkDecisionScope(actor models.Actor, req *models.Request) error {
	scope, err := reviewScope(actor)
	if err != nil {
		return err
	}
	if scope != nil && (req.OrganizationID == nil || *req.OrganizationID != *scope) {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another organization")
	}
	return nil
}
