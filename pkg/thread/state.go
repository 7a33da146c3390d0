// Package thread keeps the client-side view of one conversation thread:
// messages, tool calls, citations and warnings accumulated from the stream.
package thread

import (
	"encoding/json"
	"sync"
	"time"

	"ai-library-agent/pkg/agentstream"
	"ai-library-agent/pkg/citation"
	"ai-library-agent/pkg/library"
)

type MessageStatus string

const (
	StatusInProgress MessageStatus = "in_progress"
	StatusThinking   MessageStatus = "thinking"
	StatusCompleted  MessageStatus = "completed"
	StatusError      MessageStatus = "error"
)

func (s MessageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type ToolCall struct {
	ID        string          `json:"id"`
	MessageID string          `json:"message_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Status    string          `json:"status,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Warning is a non-fatal note attached to a message. AttachmentTitles holds
// the display titles of Attachments once resolved, in the same order.
type Warning struct {
	Type             string               `json:"type"`
	Message          string               `json:"message"`
	Attachments      []library.Coordinate `json:"attachments,omitempty"`
	AttachmentTitles []string             `json:"attachment_titles,omitempty"`
}

type Message struct {
	ID           string        `json:"id"`
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	Reasoning    string        `json:"reasoning,omitempty"`
	Status       MessageStatus `json:"status"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ToolCallIDs  []string      `json:"toolcall_ids,omitempty"`
	Warnings     []Warning     `json:"warnings,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (m *Message) clone() Message {
	out := *m
	out.ToolCallIDs = append([]string(nil), m.ToolCallIDs...)
	out.Warnings = make([]Warning, len(m.Warnings))
	for i, w := range m.Warnings {
		w.Attachments = append([]library.Coordinate(nil), w.Attachments...)
		w.AttachmentTitles = append([]string(nil), w.AttachmentTitles...)
		out.Warnings[i] = w
	}
	if len(out.Warnings) == 0 {
		out.Warnings = nil
	}
	return out
}

func (m *Message) addToolCall(id string) {
	for _, existing := range m.ToolCallIDs {
		if existing == id {
			return
		}
	}
	m.ToolCallIDs = append(m.ToolCallIDs, id)
}

// Snapshot is a deep copy of a thread's state.
type Snapshot struct {
	ThreadID        string              `json:"thread_id,omitempty"`
	Messages        []Message           `json:"messages"`
	ToolCalls       []ToolCall          `json:"tool_calls"`
	Citations       []citation.Citation `json:"citations"`
	ActiveMessageID string              `json:"active_message_id,omitempty"`
	Streaming       bool                `json:"streaming"`
}

// State is safe for concurrent use.
type State struct {
	mu sync.RWMutex

	threadID  string
	messages  []*Message
	byID      map[string]*Message
	toolCalls map[string]*ToolCall
	toolOrder []string

	citations   []citation.Citation
	citationIDs map[string]struct{}

	activeID  string
	streaming bool

	now func() time.Time
}

func NewState() *State {
	return &State{
		byID:        make(map[string]*Message),
		toolCalls:   make(map[string]*ToolCall),
		citationIDs: make(map[string]struct{}),
		now:         time.Now,
	}
}

func (s *State) ThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadID
}

func (s *State) SetThreadID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = id
}

// BeginStream marks the thread as streaming. Messages left in progress by a
// previous stream are closed as completed.
func (s *State) BeginStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if !m.Status.Terminal() {
			m.Status = StatusCompleted
		}
	}
	s.activeID = ""
	s.streaming = true
}

func (s *State) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// ensure returns the message with id, creating an in-progress assistant
// message when it is unknown. Caller holds the write lock.
func (s *State) ensure(id string) *Message {
	if m, ok := s.byID[id]; ok {
		return m
	}
	now := s.now()
	m := &Message{
		ID:        id,
		Role:      "assistant",
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[id] = m
	s.messages = append(s.messages, m)
	return m
}

// ApplyDelta appends text to the content or reasoning channel of a message
// and moves it to in_progress or thinking. Terminal messages keep their status.
func (s *State) ApplyDelta(d agentstream.DeltaEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.ensure(d.MessageID)
	if d.Type == agentstream.DeltaReasoning {
		m.Reasoning += d.Delta
		if !m.Status.Terminal() {
			m.Status = StatusThinking
		}
	} else {
		m.Content += d.Delta
		if !m.Status.Terminal() {
			m.Status = StatusInProgress
		}
	}
	m.UpdatedAt = s.now()
	if !m.Status.Terminal() {
		s.activeID = m.ID
	}
}

// UpsertMessage inserts a materialized message, or merges it into the
// existing one with the same id. Empty fields do not overwrite.
func (s *State) UpsertMessage(p agentstream.MessagePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.ensure(p.ID)
	if p.Role != "" {
		m.Role = p.Role
	}
	if p.Content != "" {
		m.Content = p.Content
	}
	if p.Reasoning != "" {
		m.Reasoning = p.Reasoning
	}
	if p.Status != "" && !m.Status.Terminal() {
		m.Status = MessageStatus(p.Status)
	}
	for _, tc := range p.ToolCalls {
		if tc.MessageID == "" {
			tc.MessageID = p.ID
		}
		s.mergeToolCall(tc)
	}
	m.UpdatedAt = s.now()
	if !m.Status.Terminal() && m.Role == "assistant" {
		s.activeID = m.ID
	}
}

// MergeToolCall merges a partial tool call into the record with the same id.
func (s *State) MergeToolCall(p agentstream.ToolCallPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.MessageID == "" {
		p.MessageID = s.activeID
	}
	s.mergeToolCall(p)
}

func (s *State) mergeToolCall(p agentstream.ToolCallPayload) {
	tc, ok := s.toolCalls[p.ID]
	if !ok {
		tc = &ToolCall{ID: p.ID}
		s.toolCalls[p.ID] = tc
		s.toolOrder = append(s.toolOrder, p.ID)
	}
	if p.MessageID != "" {
		tc.MessageID = p.MessageID
	}
	if p.Name != "" {
		tc.Name = p.Name
	}
	if p.Arguments != "" {
		tc.Arguments = p.Arguments
	}
	if p.Status != "" {
		tc.Status = p.Status
	}
	if len(p.Result) > 0 {
		tc.Result = append(json.RawMessage(nil), p.Result...)
	}
	if tc.MessageID != "" {
		s.ensure(tc.MessageID).addToolCall(tc.ID)
	}
}

// AddCitation appends a citation unless its id is already known.
func (s *State) AddCitation(c citation.Citation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.citationIDs[c.CitationID]; ok {
		return false
	}
	if c.MessageID == "" {
		c.MessageID = s.activeID
	}
	s.citationIDs[c.CitationID] = struct{}{}
	s.citations = append(s.citations, c)
	return true
}

func (s *State) Citations() []citation.Citation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]citation.Citation(nil), s.citations...)
}

// Complete marks one message as successfully finished. The stream stays open.
func (s *State) Complete(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID == "" {
		messageID = s.activeID
	}
	m, ok := s.byID[messageID]
	if !ok {
		return
	}
	if m.Status != StatusError {
		m.Status = StatusCompleted
	}
	m.UpdatedAt = s.now()
	if s.activeID == messageID {
		s.activeID = ""
	}
}

// Done ends the stream. The named message, or the active one, is completed.
func (s *State) Done(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID == "" {
		messageID = s.activeID
	}
	if m, ok := s.byID[messageID]; ok && m.Status != StatusError {
		m.Status = StatusCompleted
		m.UpdatedAt = s.now()
	}
	s.activeID = ""
	s.streaming = false
}

// Fail terminates the target message with a typed error and ends the stream.
// Without a target, a placeholder assistant message carries the error.
func (s *State) Fail(se *agentstream.StreamError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := se.MessageID
	if id == "" {
		id = s.activeID
	}
	var m *Message
	if id != "" {
		m = s.ensure(id)
	} else {
		m = s.ensure("error-" + s.now().Format("20060102T150405.000000000"))
	}
	m.Status = StatusError
	m.ErrorKind = string(se.Kind)
	m.ErrorMessage = se.Message
	m.UpdatedAt = s.now()
	s.activeID = ""
	s.streaming = false
}

// AddWarning attaches a warning to its message, or the active one. Status is
// left alone.
func (s *State) AddWarning(messageID string, w Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID == "" {
		messageID = s.activeID
	}
	if messageID == "" && len(s.messages) > 0 {
		messageID = s.messages[len(s.messages)-1].ID
	}
	if messageID == "" {
		return
	}
	m := s.ensure(messageID)
	m.Warnings = append(m.Warnings, w)
	m.UpdatedAt = s.now()
}

func (s *State) Message(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return m.clone(), true
}

func (s *State) ActiveMessageID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ThreadID:        s.threadID,
		Messages:        make([]Message, 0, len(s.messages)),
		ToolCalls:       make([]ToolCall, 0, len(s.toolOrder)),
		Citations:       append([]citation.Citation{}, s.citations...),
		ActiveMessageID: s.activeID,
		Streaming:       s.streaming,
	}
	for _, m := range s.messages {
		snap.Messages = append(snap.Messages, m.clone())
	}
	for _, id := range s.toolOrder {
		tc := *s.toolCalls[id]
		tc.Result = append(json.RawMessage(nil), tc.Result...)
		snap.ToolCalls = append(snap.ToolCalls, tc)
	}
	return snap
}
