package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/signatory-approval-api/internal/models"
)

// AttachmentRepository persists uploaded file metadata.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs the repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts attachment metadata and fills in the generated id.
func (r *AttachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attachments (request_id, stored_name, original_name, content_type, size_bytes, uploaded_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		attachment.RequestID,
		attachment.StoredName,
		attachment.OriginalName,
		attachment.ContentType,
		attachment.SizeBytes,
		attachment.UploadedBy,
		attachment.CreatedAt,
	).Scan(&attachment.ID); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// ListByRequest returns attachments for a request in upload order.
func (r *AttachmentRepository) ListByRequest(ctx context.Context, requestID int64) ([]models.Attachment, error) {
	const query = `SELECT id, request_id, stored_name, original_name, content_type, size_bytes, uploaded_by, created_at
	FROM attachments WHERE request_id = $1 ORDER BY created_at ASC, id ASC`
	attachments := make([]models.Attachment, 0)
	if err := r.db.SelectContext(ctx, &attachments, query, requestID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

// GetByID fetches one attachment. Missing rows return sql.ErrNoRows.
func (r *AttachmentRepository) GetByID(ctx context.Context, id int64) (*models.Attachment, error) {
	const query = `SELECT id, request_id, stored_name, original_name, content_type, size_bytes, uploaded_by, created_at
	FROM attachments WHERE id = $1`
	var attachment models.Attachment
	if err := r.db.GetContext(ctx, &attachment, query, id); err != nil {
		return nil, err
	}
	return &attachment, nil
}
