package dto

import (
	"time"

	"ai-library-agent/pkg/actions"
)

type ActionResponse struct {
	ID           string              `json:"id"`
	ActionType   string              `json:"action_type"`
	MessageID    string              `json:"message_id"`
	ToolCallID   string              `json:"toolcall_id"`
	Status       string              `json:"status"`
	ProposedData interface{}         `json:"proposed_data"`
	ResultData   *actions.ResultData `json:"result_data,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Busy         bool                `json:"busy"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type ListActionsRequest struct {
	ToolCallID string `query:"toolcall_id"`
	ActionType string `query:"type" validate:"omitempty,oneof=create_item highlight_annotation note_annotation"`
	Status     string `query:"status" validate:"omitempty,oneof=pending applied rejected undone error"`
}

type ApplyAllRequest struct {
	// ActionIDs limits the batch; every pending action is applied when empty.
	ActionIDs []string `json:"action_ids"`
}

type ApplyAllResponse struct {
	Applied  map[string]*actions.ResultData `json:"applied"`
	Failed   map[string]string              `json:"failed"`
	Skipped  map[string]string              `json:"skipped"`
	Acked    []string                       `json:"acked"`
	AckError string                         `json:"ack_error,omitempty"`
}

type MarkErrorRequest struct {
	ActionIDs []string `json:"action_ids" validate:"required,min=1"`
	Message   string   `json:"message" validate:"required"`
}

type AckRetryResponse struct {
	Acked   []string      `json:"acked"`
	Pending []actions.Ack `json:"pending"`
	Error   string        `json:"error,omitempty"`
}

type ValidateActionsResponse struct {
	Checked []string `json:"checked"`
	Undone  []string `json:"undone"`
	Skipped []string `json:"skipped"`
}
