package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ActionAuditLog stores one status change of a proposed action.
type ActionAuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string         `gorm:"type:varchar(64);not null;index:idx_action_audit_user_created,priority:1" json:"user_id"`
	ThreadKey  string         `gorm:"type:varchar(64);not null;index:idx_action_audit_thread,priority:1" json:"thread_key"`
	ActionID   string         `gorm:"type:varchar(128);not null;index:idx_action_audit_thread,priority:2" json:"action_id"`
	EventType  string         `gorm:"type:varchar(50);not null" json:"event_type"`
	ActionType string         `gorm:"type:varchar(50)" json:"action_type"`
	LibraryID  int            `json:"library_id,omitempty"`
	ZoteroKey  string         `gorm:"type:varchar(16)" json:"zotero_key,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	OccurredAt time.Time      `gorm:"not null;index:idx_action_audit_user_created,priority:2" json:"occurred_at"`
	CreatedAt  time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ActionAuditLog) TableName() string {
	return "action_audit_logs"
}
