package models

import (
	"time"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
)

// NotificationStatus tracks outbox delivery.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSending NotificationStatus = "SENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// Notification is an outbox row addressed to a user or to every holder of a role. Role rows carry
// the request's organization so scoped reviewers only see their own.
type Notification struct {
	ID             int64              `db:"id" json:"id"`
	RequestID      int64              `db:"request_id" json:"requestId"`
	RecipientID    *int64             `db:"recipient_id" json:"recipientId,omitempty"`
	RecipientRole  *approval.Role     `db:"recipient_role" json:"recipientRole,omitempty"`
	OrganizationID *int64             `db:"organization_id" json:"organizationId,omitempty"`
	Message        string             `db:"message" json:"message"`
	Status         NotificationStatus `db:"status" json:"status"`
	Attempts       int                `db:"attempts" json:"attempts"`
	LastError      *string            `db:"last_error" json:"-"`
	CreatedAt      time.Time          `db:"created_at" json:"createdAt"`
	ClaimedAt      *time.Time         `db:"claimed_at" json:"-"`
	SentAt         *time.Time         `db:"sent_at" json:"sentAt,omitempty"`
}

// NotificationFilter lists notifications visible to one session. Role-addressed rows are included
// only when IncludeRole is set, and then only inside OrganizationID when it is non-nil.
type NotificationFilter struct {
	UserID         int64
	Role           approval.Role
	IncludeRole    bool
	OrganizationID *int64
	Limit          int
	Offset         int
}
