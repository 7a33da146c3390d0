// Package agentstream opens completion requests against the origin service
// and routes the framed events of the response body to typed handlers.
package agentstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/citation"
)

var errClosedEarly = errors.New("stream closed before done")

// Opener starts one completion request and returns its streaming body.
type Opener interface {
	OpenCompletion(ctx context.Context, payload interface{}) (io.ReadCloser, error)
}

// Client tracks at most one live session per thread key.
type Client struct {
	opener Opener
	logger logger.ILogger

	generation atomic.Uint64

	mu     sync.Mutex
	active map[string]*Session
}

func NewClient(opener Opener, log logger.ILogger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Client{
		opener: opener,
		logger: log,
		active: make(map[string]*Session),
	}
}

// Session is one in-flight completion request.
type Session struct {
	ThreadKey  string
	Generation uint64

	client    *Client
	handlers  Handlers
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}

	// held while an event is checked and routed
	routeMu sync.Mutex

	bodyMu sync.Mutex
	body   io.ReadCloser
}

// Start opens a completion for threadKey and routes its events to h from a
// background goroutine. A session still live for the same thread is
// cancelled first.
func (c *Client) Start(ctx context.Context, threadKey string, payload interface{}, h Handlers) *Session {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ThreadKey:  threadKey,
		Generation: c.generation.Add(1),
		client:     c,
		handlers:   h,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.active[threadKey]
	c.active[threadKey] = s
	c.mu.Unlock()

	if prev != nil {
		c.logger.Info("AgentStream", "Superseding live session", map[string]interface{}{
			"thread":         threadKey,
			"old_generation": prev.Generation,
			"new_generation": s.Generation,
		})
		prev.Cancel()
	}

	go s.run(sctx, payload)
	return s
}

// Active returns the live session of a thread, if any.
func (c *Client) Active(threadKey string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.active[threadKey]
	return s, ok
}

// Cancel cancels the live session of a thread. Returns false when none is live.
func (c *Client) Cancel(threadKey string) bool {
	s, ok := c.Active(threadKey)
	if !ok {
		return false
	}
	s.Cancel()
	return true
}

// Cancel closes the transport and marks the session cancelled. It waits for
// a handler that is already running, and no handler runs once it returns.
// Safe to call more than once, but not from the session's own handlers.
func (s *Session) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.routeMu.Lock()
	s.cancel()
	s.routeMu.Unlock()
	s.closeBody()
	s.client.release(s)
}

func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// Done is closed when the session's goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Wait() { <-s.done }

func (s *Session) setBody(body io.ReadCloser) bool {
	s.bodyMu.Lock()
	defer s.bodyMu.Unlock()
	if s.cancelled.Load() {
		return false
	}
	s.body = body
	return true
}

func (s *Session) closeBody() {
	s.bodyMu.Lock()
	defer s.bodyMu.Unlock()
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
}

func (s *Session) run(ctx context.Context, payload interface{}) {
	defer close(s.done)
	defer s.client.release(s)
	defer s.cancel()

	body, err := s.client.opener.OpenCompletion(ctx, payload)
	if err != nil {
		if !s.cancelled.Load() {
			s.client.deliverError(s, ClassifyError(err))
		}
		return
	}
	if !s.setBody(body) {
		body.Close()
		return
	}
	defer s.closeBody()

	dec := NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if s.cancelled.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = errClosedEarly
			}
			se := ClassifyError(err)
			if errors.Is(err, errClosedEarly) {
				se.Kind = ErrorNetwork
			}
			s.client.deliverError(s, se)
			return
		}

		if !s.client.deliver(s, ev) {
			return
		}
		if ev.Name == EventDone || ev.Name == EventError {
			return
		}
	}
}

func (c *Client) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[s.ThreadKey]; ok && cur == s {
		delete(c.active, s.ThreadKey)
	}
}

// isCurrent reports whether s is still the live generation of its thread.
func (c *Client) isCurrent(s *Session) bool {
	if s.cancelled.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.active[s.ThreadKey]
	return ok && cur.Generation == s.Generation
}

func (c *Client) deliverError(s *Session, se *StreamError) {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()
	if !c.isCurrent(s) {
		return
	}
	c.logger.Warn("AgentStream", "Stream failed", map[string]interface{}{
		"thread": s.ThreadKey,
		"kind":   string(se.Kind),
		"error":  se.Message,
	})
	if s.handlers.OnError != nil {
		s.handlers.OnError(se)
	}
}

// deliver routes one event. Returns false when the event was dropped because
// its session is no longer current.
func (c *Client) deliver(s *Session, ev Event) bool {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()
	if !c.isCurrent(s) {
		c.logger.Debug("AgentStream", "Dropping stale event", map[string]interface{}{
			"thread":     s.ThreadKey,
			"generation": s.Generation,
			"event":      ev.Name,
		})
		return false
	}
	if err := route(s.handlers, ev); err != nil {
		c.logger.Warn("AgentStream", "Malformed event payload", map[string]interface{}{
			"thread": s.ThreadKey,
			"event":  ev.Name,
			"error":  err.Error(),
		})
		if s.handlers.OnDecodeError != nil {
			s.handlers.OnDecodeError(ev.Name, err)
		}
	}
	return true
}

func decode(ev Event, into interface{}) error {
	if err := json.Unmarshal(ev.Data, into); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Name, err)
	}
	return nil
}

// route decodes one event and invokes its handler. Unknown event names are
// ignored.
func route(h Handlers, ev Event) error {
	switch ev.Name {
	case EventThread:
		var p ThreadEvent
		if err := decode(ev, &p); err != nil {
			return err
		}
		if h.OnThread != nil {
			h.OnThread(p.ThreadID)
		}

	case EventDelta:
		var p DeltaEvent
		if err := decode(ev, &p); err != nil {
			return err
		}
		if p.MessageID == "" {
			return fmt.Errorf("decode delta: missing message_id")
		}
		if p.Type != DeltaReasoning {
			p.Type = DeltaContent
		}
		if h.OnDelta != nil {
			h.OnDelta(p)
		}

	case EventMessage:
		var p MessagePayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if p.ID == "" {
			return fmt.Errorf("decode message: missing id")
		}
		if h.OnMessage != nil {
			h.OnMessage(p)
		}

	case EventToolCall:
		var p ToolCallPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if p.ID == "" {
			return fmt.Errorf("decode toolcall: missing id")
		}
		if h.OnToolCall != nil {
			h.OnToolCall(p)
		}

	case EventProposedAction:
		parsed, err := actions.ParseProposals(ev.Data)
		if len(parsed) > 0 && h.OnProposedActions != nil {
			h.OnProposedActions(parsed)
		}
		if err != nil {
			return fmt.Errorf("decode proposed_action: %w", err)
		}

	case EventCitationMetadata:
		var p citation.Citation
		if err := decode(ev, &p); err != nil {
			return err
		}
		if p.CitationID == "" {
			return fmt.Errorf("decode citation_metadata: missing citation_id")
		}
		if h.OnCitation != nil {
			h.OnCitation(p)
		}

	case EventComplete:
		var p CompleteEvent
		if err := decode(ev, &p); err != nil {
			return err
		}
		if h.OnComplete != nil {
			h.OnComplete(p.MessageID)
		}

	case EventDone:
		var p DoneEvent
		if len(ev.Data) > 0 {
			if err := decode(ev, &p); err != nil {
				// done still ends the session
				if h.OnDone != nil {
					h.OnDone("")
				}
				return err
			}
		}
		if h.OnDone != nil {
			h.OnDone(p.MessageID)
		}

	case EventError:
		var p ErrorEvent
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			p = ErrorEvent{Type: string(ErrorUnknown), Message: string(ev.Data)}
		}
		if h.OnError != nil {
			h.OnError(&StreamError{Kind: ParseErrorKind(p.Type), Message: p.Message, MessageID: p.MessageID})
		}

	case EventWarning:
		var p WarningEvent
		if err := decode(ev, &p); err != nil {
			return err
		}
		if h.OnWarning != nil {
			h.OnWarning(p)
		}
	}
	return nil
}
