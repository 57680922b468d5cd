package models

import "time"

// Attachment is metadata for a file uploaded against a request.
type Attachment struct {
	ID           int64     `db:"id" json:"id"`
	RequestID    int64     `db:"request_id" json:"requestId"`
	StoredName   string    `db:"stored_name" json:"-"`
	OriginalName string    `db:"original_name" json:"originalName"`
	ContentType  string    `db:"content_type" json:"contentType"`
	SizeBytes    int64     `db:"size_bytes" json:"sizeBytes"`
	UploadedBy   int64     `db:"uploaded_by" json:"uploadedBy"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
