package models

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionRequestCreate    = "REQUEST_CREATE"
	AuditActionStageDecision    = "STAGE_DECISION"
	AuditActionAttachmentUpload = "ATTACHMENT_UPLOAD"
)

// AuditEntityRequest is the entity name used for request audit rows.
const AuditEntityRequest = "request"

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID        int64           `db:"id" json:"id"`
	ActorID   int64           `db:"actor_id" json:"actorId"`
	ActorRole approval.Role   `db:"actor_role" json:"actorRole"`
	Action    string          `db:"action" json:"action"`
	Entity    string          `db:"entity" json:"entity"`
	EntityID  int64           `db:"entity_id" json:"entityId"`
	Details   json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}
