package dto

import (
	"io"
	"time"

	"github.com/noah-isme/signatory-approval-api/internal/models"
)

// UploadAttachment carries an incoming file.
type UploadAttachment struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentResponse is attachment metadata with a signed download link.
type AttachmentResponse struct {
	models.Attachment
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
