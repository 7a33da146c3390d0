package agentstream

import (
	"encoding/json"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/citation"
	"ai-library-agent/pkg/library"
)

// Event names of the completion stream.
const (
	EventThread           = "thread"
	EventDelta            = "delta"
	EventMessage          = "message"
	EventToolCall         = "toolcall"
	EventProposedAction   = "proposed_action"
	EventCitationMetadata = "citation_metadata"
	EventComplete         = "complete"
	EventDone             = "done"
	EventError            = "error"
	EventWarning          = "warning"
)

const (
	DeltaContent   = "content"
	DeltaReasoning = "reasoning"
)

type ThreadEvent struct {
	ThreadID string `json:"thread_id"`
}

type DeltaEvent struct {
	MessageID string `json:"message_id"`
	Type      string `json:"type"`
	Delta     string `json:"delta"`
}

type ToolCallPayload struct {
	ID        string          `json:"id"`
	MessageID string          `json:"message_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Status    string          `json:"status,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

type MessagePayload struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Reasoning string            `json:"reasoning_content,omitempty"`
	Status    string            `json:"status,omitempty"`
	ToolCalls []ToolCallPayload `json:"tool_calls,omitempty"`
}

type CompleteEvent struct {
	MessageID string `json:"message_id"`
}

type DoneEvent struct {
	MessageID string `json:"message_id,omitempty"`
}

type ErrorEvent struct {
	MessageID string `json:"message_id,omitempty"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

type WarningEvent struct {
	MessageID   string               `json:"message_id,omitempty"`
	Type        string               `json:"type"`
	Message     string               `json:"message"`
	Attachments []library.Coordinate `json:"attachments,omitempty"`
}

// Handlers receive routed events in arrival order. Nil handlers are skipped.
type Handlers struct {
	OnThread          func(threadID string)
	OnDelta           func(DeltaEvent)
	OnMessage         func(MessagePayload)
	OnToolCall        func(ToolCallPayload)
	OnProposedActions func([]*actions.ProposedAction)
	OnCitation        func(citation.Citation)
	OnComplete        func(messageID string)
	OnDone            func(messageID string)
	OnError           func(*StreamError)
	OnWarning         func(WarningEvent)

	// OnDecodeError reports a malformed payload of a known event. The stream
	// continues.
	OnDecodeError func(event string, err error)
}
