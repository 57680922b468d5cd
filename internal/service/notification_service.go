package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/jobs"
)

// claimLease is how long a SENDING row stays reserved before another sender may take it over.
const claimLease = 2 * time.Minute

var errAlreadyClaimed = errors.New("notification claimed by another sender")

// Event describes a state change worth telling people about. Role is the signatory who acted and
// is empty for a fresh submission. OrganizationID scopes the rows addressed to NextRoles.
type Event struct {
	RequestID          int64
	Kind               approval.Kind
	Title              string
	Role               approval.Role
	NotificationStatus string
	RecipientID        int64
	OrganizationID     *int64
	NextRoles          []approval.Role
}

// Notifier accepts events after a successful commit.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// Sender pushes a payload to live sessions of a user or of every holder of a role who may see
// requests of organizationID.
type Sender interface {
	SendToUser(ctx context.Context, userID int64, payload interface{}) error
	SendToRole(ctx context.Context, role approval.Role, organizationID *int64, payload interface{}) error
}

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	Claim(ctx context.Context, id int64, at, staleBefore time.Time) (*models.Notification, error)
	ListUndelivered(ctx context.Context, maxAttempts, limit int, staleBefore time.Time) ([]models.Notification, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	ListForRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
}

type deliveryQueue interface {
	TryEnqueue(job jobs.Job[int64]) error
}

// NotificationPayload is what live sessions receive.
type NotificationPayload struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"requestId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationService writes the outbox and delivers rows through a Sender.
type NotificationService struct {
	store    notificationStore
	sender   Sender
	queue    deliveryQueue
	metrics  *MetricsService
	logger   *zap.Logger
	pageSize int
	now      func() time.Time
}

// NewNotificationService constructs the outbox writer. A nil queue leaves delivery to the dispatcher.
func NewNotificationService(store notificationStore, sender Sender, metrics *MetricsService, logger *zap.Logger, pageSize int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &NotificationService{store: store, sender: sender, metrics: metrics, logger: logger, pageSize: pageSize, now: time.Now}
}

// UseQueue attaches the in-memory delivery queue. A full queue never blocks Publish; the row stays
// PENDING for the dispatcher.
func (s *NotificationService) UseQueue(queue deliveryQueue) {
	s.queue = queue
}

// Publish persists one row for the owner and one per role that can act next, then queues delivery.
func (s *NotificationService) Publish(ctx context.Context, event Event) error {
	rows := make([]*models.Notification, 0, 1+len(event.NextRoles))
	if event.RecipientID > 0 {
		owner := event.RecipientID
		rows = append(rows, &models.Notification{
			RequestID:   event.RequestID,
			RecipientID: &owner,
			Message:     ownerMessage(event),
		})
	}
	for _, role := range event.NextRoles {
		role := role
		rows = append(rows, &models.Notification{
			RequestID:      event.RequestID,
			RecipientRole:  &role,
			OrganizationID: event.OrganizationID,
			Message:        reviewerMessage(event),
		})
	}

	for _, n := range rows {
		n.Status = models.NotificationPending
		n.CreatedAt = s.now().UTC()
		if err := s.store.Create(ctx, n); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
		}
		s.enqueue(n.ID)
	}
	return nil
}

func (s *NotificationService) enqueue(id int64) {
	if s.queue == nil {
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job[int64]{ID: strconv.FormatInt(id, 10), Payload: id}); err != nil {
		s.logger.Warn("notification left for dispatcher", zap.Int64("notification_id", id), zap.Error(err))
	}
}

// HandleJob is the delivery queue handler.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job[int64]) error {
	err := s.deliver(ctx, job.Payload)
	if errors.Is(err, errAlreadyClaimed) {
		return nil
	}
	return err
}

// Deliver sends one outbox row. The row is claimed first, so a row that was sent or is being sent
// elsewhere returns errAlreadyClaimed without reaching the Sender.
func (s *NotificationService) Deliver(ctx context.Context, n *models.Notification) error {
	return s.deliver(ctx, n.ID)
}

func (s *NotificationService) deliver(ctx context.Context, id int64) error {
	now := s.now().UTC()
	n, err := s.store.Claim(ctx, id, now, now.Add(-claimLease))
	if err != nil {
		return fmt.Errorf("claim notification %d: %w", id, err)
	}
	if n == nil {
		return errAlreadyClaimed
	}
	payload := NotificationPayload{ID: n.ID, RequestID: n.RequestID, Message: n.Message, CreatedAt: n.CreatedAt}

	switch {
	case s.sender == nil:
		err = fmt.Errorf("no notification sender configured")
	case n.RecipientID != nil:
		err = s.sender.SendToUser(ctx, *n.RecipientID, payload)
	case n.RecipientRole != nil:
		err = s.sender.SendToRole(ctx, *n.RecipientRole, n.OrganizationID, payload)
	default:
		err = fmt.Errorf("notification %d has no recipient", n.ID)
	}

	if err != nil {
		s.metrics.RecordNotification(false)
		if markErr := s.store.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to record delivery failure", zap.Int64("notification_id", n.ID), zap.Error(markErr))
		}
		return err
	}

	s.metrics.RecordNotification(true)
	if err := s.store.MarkSent(ctx, n.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("mark notification %d sent: %w", n.ID, err)
	}
	return nil
}

// List returns the caller's notifications. Role-addressed rows follow the same organization scope
// as the approval queue; an adviser without an organization only sees rows addressed to them.
func (s *NotificationService) List(ctx context.Context, actor models.Actor, query dto.NotificationQuery) ([]models.Notification, *models.Pagination, error) {
	page := query.Page
	if page <= 0 {
		page = 1
	}
	scope, scoped := actor.ReviewScope()
	items, total, err := s.store.ListForRecipient(ctx, models.NotificationFilter{
		UserID:         actor.UserID,
		Role:           actor.Role,
		IncludeRole:    scoped,
		OrganizationID: scope,
		Limit:          s.pageSize,
		Offset:         (page - 1) * s.pageSize,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, models.NewPagination(page, s.pageSize, total), nil
}

func ownerMessage(event Event) string {
	return fmt.Sprintf("%s request %q: %s", kindLabel(event.Kind), event.Title, event.NotificationStatus)
}

func reviewerMessage(event Event) string {
	return fmt.Sprintf("%s request %q is awaiting your approval", kindLabel(event.Kind), event.Title)
}

func kindLabel(kind approval.Kind) string {
	switch kind {
	case approval.KindFunding:
		return "Funding"
	case approval.KindVenue:
		return "Venue"
	default:
		return string(kind)
	}
}
