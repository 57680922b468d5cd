package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/signatory-approval-api/internal/models"
)

// AuditRepository appends audit trail rows.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	var details *string
	if len(log.Details) > 0 {
		value := string(log.Details)
		details = &value
	}
	const query = `INSERT INTO audit_logs (actor_id, actor_role, action, entity, entity_id, details, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, log.ActorID, string(log.ActorRole), log.Action, log.Entity, log.EntityID, details, log.CreatedAt).Scan(&log.ID); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListByEntity returns the trail for one entity, oldest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entity string, entityID int64) ([]models.AuditLog, error) {
	const query = `SELECT id, actor_id, actor_role, action, entity, entity_id, COALESCE(details, '{}'::jsonb) AS details, created_at
	FROM audit_logs WHERE entity = $1 AND entity_id = $2 ORDER BY created_at ASC, id ASC`
	items := make([]models.AuditLog, 0)
	if err := r.db.SelectContext(ctx, &items, query, entity, entityID); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return items, nil
}
