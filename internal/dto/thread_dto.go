package dto

import (
	"ai-library-agent/pkg/citation"
	"ai-library-agent/pkg/library"
	"ai-library-agent/pkg/thread"
)

type StartCompletionRequest struct {
	// ThreadKey names the local workspace; a new one is created when empty.
	ThreadKey   string                 `json:"thread_key"`
	Content     string                 `json:"content" validate:"required"`
	Attachments []library.Coordinate   `json:"attachments" validate:"dive"`
	Options     map[string]interface{} `json:"options"`
}

type StartCompletionResponse struct {
	ThreadKey  string `json:"thread_key"`
	ThreadID   string `json:"thread_id,omitempty"`
	Generation uint64 `json:"generation"`
}

// CompletionPayload is the body sent to the origin service.
type CompletionPayload struct {
	ThreadID    string                 `json:"thread_id,omitempty"`
	LibraryID   int                    `json:"library_id"`
	Content     string                 `json:"content"`
	Attachments []library.Coordinate   `json:"attachments,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

type CancelCompletionResponse struct {
	ThreadKey string `json:"thread_key"`
	Cancelled bool   `json:"cancelled"`
}

type ThreadSnapshotResponse struct {
	ThreadKey       string            `json:"thread_key"`
	ThreadID        string            `json:"thread_id"`
	Streaming       bool              `json:"streaming"`
	ActiveMessageID string            `json:"active_message_id,omitempty"`
	Messages        []thread.Message  `json:"messages"`
	ToolCalls       []thread.ToolCall `json:"tool_calls"`
	Citations       []citation.Entry  `json:"citations"`
	Actions         []*ActionResponse `json:"actions"`
}

// ThreadUpdateMessage is pushed to websocket clients when a thread changes.
type ThreadUpdateMessage struct {
	ThreadKey string   `json:"thread_key"`
	Kind      string   `json:"kind"`
	ActionIDs []string `json:"action_ids,omitempty"`
}
