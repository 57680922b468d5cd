package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/storage"
)

type requestReader interface {
	GetByID(ctx context.Context, id int64) (*models.Request, error)
}

type attachmentStore interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	ListByRequest(ctx context.Context, requestID int64) ([]models.Attachment, error)
	GetByID(ctx context.Context, id int64) (*models.Attachment, error)
}

type fileStore interface {
	Save(name string, r io.Reader, limit int64) (int64, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
}

type urlSigner interface {
	Sign(attachmentID int64, storedName string) (string, time.Time, error)
	Verify(token string) (storage.DownloadClaim, error)
}

// AttachmentConfig bounds uploads.
type AttachmentConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	DownloadPath     string
}

// AttachmentService stores supporting files for requests and hands out signed download links.
type AttachmentService struct {
	requests requestReader
	repo     attachmentStore
	files    fileStore
	signer   urlSigner
	audit    auditWriter
	registry *approval.Registry
	logger   *zap.Logger
	cfg      AttachmentConfig
	allowed  map[string]struct{}
}

// NewAttachmentService wires the attachment workflow.
func NewAttachmentService(requests requestReader, repo attachmentStore, files fileStore, signer urlSigner, audit auditWriter, registry *approval.Registry, logger *zap.Logger, cfg AttachmentConfig) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = approval.DefaultRegistry()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 10 << 20
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/attachments/download"
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, value := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(value))] = struct{}{}
	}
	return &AttachmentService{
		requests: requests,
		repo:     repo,
		files:    files,
		signer:   signer,
		audit:    audit,
		registry: registry,
		logger:   logger,
		cfg:      cfg,
		allowed:  allowed,
	}
}

// Upload stores a file against a request owned by the caller.
func (s *AttachmentService) Upload(ctx context.Context, actor models.Actor, requestID int64, upload dto.UploadAttachment) (*dto.AttachmentResponse, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitting officer can attach files")
	}

	contentType, err := s.checkType(upload.ContentType)
	if err != nil {
		return nil, err
	}
	if upload.Size > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSizeBytes))
	}

	original := cleanFileName(upload.FileName)
	stored := fmt.Sprintf("requests/%d/%s%s", requestID, uuid.NewString(), strings.ToLower(filepath.Ext(original)))
	written, err := s.files.Save(stored, upload.Body, s.cfg.MaxFileSizeBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSizeBytes))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	attachment := &models.Attachment{
		RequestID:    requestID,
		StoredName:   stored,
		OriginalName: original,
		ContentType:  contentType,
		SizeBytes:    written,
		UploadedBy:   actor.UserID,
	}
	if err := s.repo.Create(ctx, attachment); err != nil {
		if delErr := s.files.Delete(stored); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("stored_name", stored), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attachment")
	}

	if s.audit != nil {
		writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionAttachmentUpload, requestID, map[string]interface{}{
			"attachment_id": attachment.ID,
			"original_name": original,
			"size_bytes":    written,
		})
	}
	return s.withLink(*attachment)
}

// List returns the request's attachments if the caller may see the request.
func (s *AttachmentService) List(ctx context.Context, actor models.Actor, requestID int64) ([]dto.AttachmentResponse, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(s.registry, actor, req); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	out := make([]dto.AttachmentResponse, 0, len(items))
	for _, item := range items {
		resp, err := s.withLink(item)
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, nil
}

// Open resolves a signed download token to the attachment and an open file handle.
func (s *AttachmentService) Open(ctx context.Context, token string) (*models.Attachment, *os.File, error) {
	claim, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "download link expired")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download link")
	}
	attachment, err := s.repo.GetByID(ctx, claim.AttachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	if attachment.StoredName != claim.StoredName {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	file, err := s.files.Open(attachment.StoredName)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "attachment file missing")
	}
	return attachment, file, nil
}

func (s *AttachmentService) withLink(attachment models.Attachment) (*dto.AttachmentResponse, error) {
	token, expiresAt, err := s.signer.Sign(attachment.ID, attachment.StoredName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.AttachmentResponse{
		Attachment:  attachment,
		DownloadURL: s.cfg.DownloadPath + "?token=" + url.QueryEscape(token),
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *AttachmentService) loadRequest(ctx context.Context, id int64) (*models.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return req, nil
}

func (s *AttachmentService) checkType(raw string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnsupportedType.Code, appErrors.ErrUnsupportedType.Status, "invalid content type")
	}
	mediaType = strings.ToLower(mediaType)
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[mediaType]; !ok {
			return "", appErrors.Clone(appErrors.ErrUnsupportedType, fmt.Sprintf("%s files are not accepted", mediaType))
		}
	}
	return mediaType, nil
}

func cleanFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "attachment"
	}
	if len(base) > 200 {
		base = base[len(base)-200:]
	}
	return base
}
