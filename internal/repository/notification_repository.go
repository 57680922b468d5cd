package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/signatory-approval-api/internal/models"
)

const notificationColumns = `id, request_id, recipient_id, recipient_role, organization_id, message, status, attempts, last_error, created_at, claimed_at, sent_at`

// NotificationRepository is the notification outbox.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a pending notification and fills in its id.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var role *string
	if n.RecipientRole != nil {
		value := string(*n.RecipientRole)
		role = &value
	}
	const query = `INSERT INTO notifications (request_id, recipient_id, recipient_role, organization_id, message, status, attempts, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, n.RequestID, n.RecipientID, role, n.OrganizationID, n.Message, string(n.Status), n.Attempts, n.CreatedAt).Scan(&n.ID); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// Claim moves a deliverable row to SENDING and returns it. A row counts as deliverable while it is
// PENDING or FAILED, or SENDING with a claim older than staleBefore. It returns nil when another
// sender holds the row or it was already sent.
func (r *NotificationRepository) Claim(ctx context.Context, id int64, at, staleBefore time.Time) (*models.Notification, error) {
	query := `UPDATE notifications SET status = 'SENDING', claimed_at = $2
	WHERE id = $1 AND (status IN ('PENDING', 'FAILED') OR (status = 'SENDING' AND claimed_at < $3))
	RETURNING ` + notificationColumns
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, id, at, staleBefore); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim notification: %w", err)
	}
	return &n, nil
}

// ListUndelivered returns rows still under the attempt limit that nobody is sending, oldest first.
// SENDING rows whose claim predates staleBefore are returned too.
func (r *NotificationRepository) ListUndelivered(ctx context.Context, maxAttempts, limit int, staleBefore time.Time) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications
	WHERE attempts < $1 AND (status IN ('PENDING', 'FAILED') OR (status = 'SENDING' AND claimed_at < $2))
	ORDER BY created_at ASC, id ASC LIMIT $3`
	items := make([]models.Notification, 0)
	if err := r.db.SelectContext(ctx, &items, query, maxAttempts, staleBefore, limit); err != nil {
		return nil, fmt.Errorf("list undelivered notifications: %w", err)
	}
	return items, nil
}

// MarkSent records a successful delivery. Already-sent rows are left untouched.
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE notifications SET status = 'SENT', attempts = attempts + 1, sent_at = $2, last_error = NULL, claimed_at = NULL
	WHERE id = $1 AND status <> 'SENT'`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	const query = `UPDATE notifications SET status = 'FAILED', attempts = attempts + 1, last_error = $2, claimed_at = NULL
	WHERE id = $1 AND status <> 'SENT'`
	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

// ListForRecipient returns notifications addressed to the user and, when the filter asks for it,
// to the user's role, newest first. A scoped filter only matches role rows of that organization.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where := ` WHERE recipient_id = $1`
	args := []interface{}{filter.UserID}
	if filter.IncludeRole {
		args = append(args, string(filter.Role))
		if filter.OrganizationID != nil {
			args = append(args, *filter.OrganizationID)
			where = ` WHERE recipient_id = $1 OR (recipient_role = $2 AND organization_id = $3)`
		} else {
			where = ` WHERE recipient_id = $1 OR recipient_role = $2`
		}
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	limit, offset := clampPage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM notifications%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, notificationColumns, where, limit, offset)
	items := make([]models.Notification, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}
