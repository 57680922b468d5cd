package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/middleware/requestid"
)

type requestStore interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id int64) (*models.Request, error)
	ListByOwner(ctx context.Context, filter models.OwnerFilter) ([]models.Request, int, error)
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type auditReader interface {
	ListByEntity(ctx context.Context, entity string, entityID int64) ([]models.AuditLog, error)
}

type queueInvalidator interface {
	InvalidateQueues(ctx context.Context) error
}

// RequestService handles officer submissions and request lookups.
type RequestService struct {
	repo      requestStore
	machine   *approval.Machine
	audit     auditWriter
	cache     queueInvalidator
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	pageSize  int
	now       func() time.Time
}

// NewRequestService builds a RequestService. audit, cache and notifier are optional.
func NewRequestService(
	repo requestStore,
	machine *approval.Machine,
	audit auditWriter,
	cache queueInvalidator,
	notifier Notifier,
	validate *validator.Validate,
	logger *zap.Logger,
	pageSize int,
) *RequestService {
	if machine == nil {
		machine = approval.NewMachine(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &RequestService{
		repo:      repo,
		machine:   machine,
		audit:     audit,
		cache:     cache,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		pageSize:  pageSize,
		now:       time.Now,
	}
}

// CreateFunding submits a budget, liquidation or reimbursement request.
func (s *RequestService) CreateFunding(ctx context.Context, actor models.Actor, req dto.CreateFundingRequest) (*dto.RequestDetail, error) {
	if err := s.ensureOfficer(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid funding payload")
	}
	if actor.OrganizationID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "officer account is not linked to an organization")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}

	funding := &models.FundingDetails{
		Type:          req.Type,
		Amount:        req.Amount.Round(2),
		CostBreakdown: make([]models.CostItem, 0, len(req.CostBreakdown)),
	}
	for i, item := range req.CostBreakdown {
		if item.UnitCost.IsNegative() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cost item %d has a negative unit cost", i+1))
		}
		funding.CostBreakdown = append(funding.CostBreakdown, models.CostItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitCost:    item.UnitCost,
		})
	}
	if total := funding.BreakdownTotal().Round(2); !total.Equal(funding.Amount) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cost breakdown totals %s but amount is %s", total.StringFixed(2), funding.Amount.StringFixed(2)))
	}

	request := &models.Request{
		Kind:        approval.KindFunding,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Funding:     funding,
	}
	return s.create(ctx, actor, request)
}

// CreateVenue submits a venue booking.
func (s *RequestService) CreateVenue(ctx context.Context, actor models.Actor, req dto.CreateVenueRequest) (*dto.RequestDetail, error) {
	if err := s.ensureOfficer(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid venue payload")
	}
	if !req.StartsAt.Before(req.EndsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event must start before it ends")
	}

	venue := &models.VenueDetails{
		VenueName: strings.TrimSpace(req.VenueName),
		StartsAt:  req.StartsAt.UTC(),
		EndsAt:    req.EndsAt.UTC(),
		Equipment: make([]models.EquipmentItem, 0, len(req.Equipment)),
	}
	for _, item := range req.Equipment {
		venue.Equipment = append(venue.Equipment, models.EquipmentItem{Name: strings.TrimSpace(item.Name), Quantity: item.Quantity})
	}

	request := &models.Request{
		Kind:        approval.KindVenue,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Venue:       venue,
	}
	return s.create(ctx, actor, request)
}

func (s *RequestService) create(ctx context.Context, actor models.Actor, request *models.Request) (*dto.RequestDetail, error) {
	snap, err := s.machine.NewSnapshot(request.Kind)
	if err != nil {
		return nil, configurationError(err)
	}
	now := s.now().UTC()
	request.OwnerID = actor.UserID
	request.OrganizationID = actor.OrganizationID
	request.Approval = snap
	request.SubmittedAt = now
	request.UpdatedAt = now
	request.Version = 1

	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.recordAudit(ctx, actor, models.AuditActionRequestCreate, request.ID, map[string]interface{}{
		"kind":  request.Kind,
		"title": request.Title,
	})
	s.invalidateQueues(ctx)

	nextRoles, _ := s.machine.ReadyRoles(request.Approval)
	s.publish(ctx, Event{
		RequestID:          request.ID,
		Kind:               request.Kind,
		Title:              request.Title,
		NotificationStatus: request.Approval.NotificationStatus,
		RecipientID:        request.OwnerID,
		OrganizationID:     request.OrganizationID,
		NextRoles:          nextRoles,
	})

	s.logger.Info("request submitted",
		zap.Int64("request_id", request.ID),
		zap.String("kind", string(request.Kind)),
		zap.Int64("owner_id", request.OwnerID),
	)
	return s.detail(request)
}

// ListMine returns the caller's own submissions, newest first.
func (s *RequestService) ListMine(ctx context.Context, actor models.Actor, query dto.MyRequestsQuery) ([]models.Request, *models.Pagination, error) {
	if query.Kind != "" && !query.Kind.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request kind %q", query.Kind))
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	items, total, err := s.repo.ListByOwner(ctx, models.OwnerFilter{
		OwnerID: actor.UserID,
		Kind:    query.Kind,
		Limit:   s.pageSize,
		Offset:  (page - 1) * s.pageSize,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return items, models.NewPagination(page, s.pageSize, total), nil
}

// Get returns a request the caller may see, with its rendered chain.
func (s *RequestService) Get(ctx context.Context, actor models.Actor, id int64) (*dto.RequestDetail, error) {
	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.detail(req)
}

// load fetches a request and enforces visibility.
func (s *RequestService) load(ctx context.Context, actor models.Actor, id int64) (*models.Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if err := authorizeView(s.machine.Registry(), actor, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) detail(req *models.Request) (*dto.RequestDetail, error) {
	views, err := s.machine.StageViews(req.Approval)
	if err != nil {
		return nil, configurationError(err)
	}
	detail := &dto.RequestDetail{Request: *req, Stages: views}
	if role, ok := s.machine.NextPendingRole(req.Approval); ok {
		detail.NextRole = &role
	}
	return detail, nil
}

// Trail returns the audit history of a request the caller may see.
func (s *RequestService) Trail(ctx context.Context, actor models.Actor, id int64) ([]models.AuditLog, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	reader, ok := s.audit.(auditReader)
	if !ok {
		return []models.AuditLog{}, nil
	}
	items, err := reader.ListByEntity(ctx, models.AuditEntityRequest, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return items, nil
}

func (s *RequestService) ensureOfficer(actor models.Actor) error {
	if actor.Role != approval.RoleOfficer {
		return appErrors.Clone(appErrors.ErrForbidden, "only officers submit requests")
	}
	return nil
}

func (s *RequestService) recordAudit(ctx context.Context, actor models.Actor, action string, requestID int64, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	writeAudit(ctx, s.audit, s.logger, actor, action, requestID, details)
}

func (s *RequestService) invalidateQueues(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateQueues(ctx); err != nil {
		s.logger.Warn("failed to invalidate queue cache", zap.Error(err))
	}
}

func (s *RequestService) publish(ctx context.Context, event Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish notification", zap.Int64("request_id", event.RequestID), zap.Error(err))
	}
}

// writeAudit stores an audit row; failures are logged and never surface to the caller.
func writeAudit(ctx context.Context, audit auditWriter, logger *zap.Logger, actor models.Actor, action string, requestID int64, details map[string]interface{}) {
	if reqID := requestid.FromContext(ctx); reqID != "" {
		traced := make(map[string]interface{}, len(details)+1)
		for k, v := range details {
			traced[k] = v
		}
		traced["http_request_id"] = reqID
		details = traced
	}
	var raw json.RawMessage
	if len(details) > 0 {
		encoded, err := json.Marshal(details)
		if err != nil {
			logger.Warn("failed to encode audit details", zap.String("action", action), zap.Error(err))
		} else {
			raw = encoded
		}
	}
	entry := &models.AuditLog{
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		Action:    action,
		Entity:    models.AuditEntityRequest,
		EntityID:  requestID,
		Details:   raw,
	}
	if err := audit.Create(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Int64("request_id", requestID), zap.Error(err))
	}
}
