package dto

import (
	"time"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
)

// DecisionRequest captures a signatory's outcome and optional remark.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required"`
	Remark   string `json:"remark" validate:"max=2000"`
}

// DecisionResponse summarises the request state after a decision.
type DecisionResponse struct {
	RequestID          int64                 `json:"requestId"`
	Stage              string                `json:"stage"`
	Outcome            approval.Outcome      `json:"outcome"`
	FinalStatus        approval.Status       `json:"finalStatus"`
	BudgetStatus       approval.BudgetStatus `json:"budgetStatus,omitempty"`
	NotificationStatus string                `json:"notificationStatus"`
	DecidedAt          time.Time             `json:"decidedAt"`
}

// QueueItem is a request awaiting the caller's decision.
type QueueItem struct {
	ID                 int64         `json:"id"`
	Kind               approval.Kind `json:"kind"`
	Title              string        `json:"title"`
	OwnerID            int64         `json:"ownerId"`
	OrganizationID     *int64        `json:"organizationId,omitempty"`
	Stage              string        `json:"stage"`
	NotificationStatus string        `json:"notificationStatus"`
	SubmittedAt        time.Time     `json:"submittedAt"`
}

// QueueResponse wraps a signatory queue. Scope is the organization filter applied, if any.
type QueueResponse struct {
	Role   approval.Role `json:"role"`
	Scope  *int64        `json:"organizationScope,omitempty"`
	Items  []QueueItem   `json:"items"`
	Cached bool          `json:"-"`
}

// HistoryQuery mirrors history listing filters.
type HistoryQuery struct {
	Outcome string
	Search  string
	Page    int
}

// HistoryItem is a request the caller's stage has already decided.
type HistoryItem struct {
	ID          int64           `json:"id"`
	Kind        approval.Kind   `json:"kind"`
	Title       string          `json:"title"`
	Stage       string          `json:"stage"`
	Decision    approval.Status `json:"decision"`
	DecidedAt   *time.Time      `json:"decidedAt,omitempty"`
	Remark      *string         `json:"remark,omitempty"`
	FinalStatus approval.Status `json:"finalStatus"`
}

// HistoryPage is one page of history with its total count.
type HistoryPage struct {
	Items    []HistoryItem `json:"items"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int           `json:"total"`
}
