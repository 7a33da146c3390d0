package events

import (
	"time"

	"ai-library-agent/pkg/actions"
)

const (
	TypeActionApplied  = "action.applied"
	TypeActionRejected = "action.rejected"
	TypeActionUndone   = "action.undone"
	TypeActionFailed   = "action.error"
)

// ActionTypeFor maps an action status to its audit event type. Pending has
// no event.
func ActionTypeFor(status actions.Status) (string, bool) {
	switch status {
	case actions.StatusApplied:
		return TypeActionApplied, true
	case actions.StatusRejected:
		return TypeActionRejected, true
	case actions.StatusUndone:
		return TypeActionUndone, true
	case actions.StatusError:
		return TypeActionFailed, true
	}
	return "", false
}

// NewActionEvent records the current status of one action of a thread.
func NewActionEvent(userID, threadKey string, a *actions.ProposedAction) (BaseEvent, bool) {
	typ, ok := ActionTypeFor(a.Status)
	if !ok {
		return BaseEvent{}, false
	}
	data := map[string]interface{}{
		"user_id":     userID,
		"thread_key":  threadKey,
		"action_id":   a.ID,
		"action_type": string(a.Type),
		"message_id":  a.MessageID,
		"toolcall_id": a.ToolCallID,
	}
	if a.ResultData != nil {
		data["library_id"] = a.ResultData.LibraryID
		data["zotero_key"] = a.ResultData.Key
		data["existing"] = a.ResultData.Existing
	}
	if a.ErrorMessage != "" {
		data["error_message"] = a.ErrorMessage
	}
	occurred := a.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return BaseEvent{Type: typ, Data: data, OccurredAt: occurred}, true
}
