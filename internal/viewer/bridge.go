// Package viewer drives the host document viewer through the websocket hub.
// Requests go out as `viewer.request` frames; the viewer answers with
// `viewer.response` frames that carry the request id.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/library"
	"ai-library-agent/pkg/reconcile"

	"github.com/google/uuid"
)

const (
	RequestType  = "viewer.request"
	ResponseType = "viewer.response"

	CodeNotFound = "not_found"
)

const (
	cmdIsOpen           = "is_open"
	cmdOpen             = "open"
	cmdNavigate         = "navigate"
	cmdIsReady          = "is_ready"
	cmdInsertAnnotation = "insert_annotation"
	cmdDeleteAnnotation = "delete_annotation"
	cmdAnnotationExists = "annotation_exists"
)

var (
	ErrNoViewer = errors.New("viewer: no connected viewer")
	ErrTimeout  = errors.New("viewer: request timed out")
)

// Error is a failure reported by the viewer itself.
type Error struct {
	Command string
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("viewer %s: %s (%s)", e.Command, e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	if e.Code == CodeNotFound {
		return library.ErrNotFound
	}
	return nil
}

// Transport delivers a frame to a single client of one user on this instance.
type Transport interface {
	SendOne(userID uuid.UUID, data []byte) bool
}

type request struct {
	ID      string      `json:"id"`
	Command string      `json:"command"`
	Args    interface{} `json:"args,omitempty"`
}

type response struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Bridge correlates viewer requests with their responses.
type Bridge struct {
	transport Transport
	timeout   time.Duration
	logger    logger.ILogger

	mu      sync.Mutex
	pending map[string]chan response
}

func NewBridge(transport Transport, timeout time.Duration, log logger.ILogger) *Bridge {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{
		transport: transport,
		timeout:   timeout,
		logger:    log,
		pending:   make(map[string]chan response),
	}
}

// HandleMessage consumes one inbound websocket frame. Frames that are not
// viewer responses are ignored so the bridge can share the hub.
func (b *Bridge) HandleMessage(userID uuid.UUID, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != ResponseType {
		return
	}
	var resp response
	if err := json.Unmarshal(f.Data, &resp); err != nil || resp.ID == "" {
		b.logger.Warn("ViewerBridge", "Malformed viewer response", map[string]interface{}{"user_id": userID})
		return
	}

	b.mu.Lock()
	ch, ok := b.pending[resp.ID]
	delete(b.pending, resp.ID)
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("ViewerBridge", "Response for unknown request", map[string]interface{}{"request_id": resp.ID})
		return
	}
	ch <- resp
}

// For returns the viewer of one user.
func (b *Bridge) For(userID uuid.UUID) reconcile.Viewer {
	return &userViewer{bridge: b, userID: userID}
}

// Pending returns the number of requests still awaiting a response.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) call(ctx context.Context, userID uuid.UUID, command string, args interface{}, out interface{}) error {
	id := uuid.NewString()
	payload, err := json.Marshal(request{ID: id, Command: command, Args: args})
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame{Type: RequestType, Data: payload})
	if err != nil {
		return err
	}

	ch := make(chan response, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if !b.transport.SendOne(userID, data) {
		return ErrNoViewer
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if !resp.OK {
			return &Error{Command: command, Code: resp.Code, Message: resp.Error}
		}
		if out != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("viewer %s: decode response: %w", command, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrTimeout, command)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type userViewer struct {
	bridge *Bridge
	userID uuid.UUID
}

var _ reconcile.Viewer = &userViewer{}

type attachmentArgs struct {
	Attachment library.Coordinate `json:"attachment"`
}

type annotationArgs struct {
	Annotation library.Coordinate `json:"annotation"`
}

type navigateArgs struct {
	Attachment library.Coordinate `json:"attachment"`
	PageIndex  int                `json:"page_index"`
}

type insertArgs struct {
	Attachment     library.Coordinate `json:"attachment"`
	AnnotationType string             `json:"annotation_type"`
	Text           string             `json:"text,omitempty"`
	Comment        string             `json:"comment,omitempty"`
	Color          string             `json:"color,omitempty"`
	Position       actions.Position   `json:"position"`
}

func (v *userViewer) IsOpen(ctx context.Context, attachment library.Coordinate) (bool, error) {
	var out struct {
		Open bool `json:"open"`
	}
	err := v.bridge.call(ctx, v.userID, cmdIsOpen, attachmentArgs{Attachment: attachment}, &out)
	return out.Open, err
}

func (v *userViewer) Open(ctx context.Context, attachment library.Coordinate) error {
	return v.bridge.call(ctx, v.userID, cmdOpen, attachmentArgs{Attachment: attachment}, nil)
}

func (v *userViewer) NavigateToPage(ctx context.Context, attachment library.Coordinate, pageIndex int) error {
	return v.bridge.call(ctx, v.userID, cmdNavigate, navigateArgs{Attachment: attachment, PageIndex: pageIndex}, nil)
}

func (v *userViewer) IsReady(ctx context.Context, attachment library.Coordinate) (bool, error) {
	var out struct {
		Ready bool `json:"ready"`
	}
	err := v.bridge.call(ctx, v.userID, cmdIsReady, attachmentArgs{Attachment: attachment}, &out)
	return out.Ready, err
}

func (v *userViewer) InsertAnnotation(ctx context.Context, attachment library.Coordinate, kind actions.ActionType, a actions.AnnotationProposal) (string, error) {
	annotationType := "highlight"
	if kind == actions.TypeNoteAnnotation {
		annotationType = "note"
	}
	var out struct {
		Key string `json:"zotero_key"`
	}
	err := v.bridge.call(ctx, v.userID, cmdInsertAnnotation, insertArgs{
		Attachment:     attachment,
		AnnotationType: annotationType,
		Text:           a.Text,
		Comment:        a.Comment,
		Color:          a.Color,
		Position:       a.Position,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", fmt.Errorf("viewer %s: empty annotation key", cmdInsertAnnotation)
	}
	return out.Key, nil
}

func (v *userViewer) DeleteAnnotation(ctx context.Context, annotation library.Coordinate) error {
	return v.bridge.call(ctx, v.userID, cmdDeleteAnnotation, annotationArgs{Annotation: annotation}, nil)
}

func (v *userViewer) AnnotationExists(ctx context.Context, annotation library.Coordinate) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := v.bridge.call(ctx, v.userID, cmdAnnotationExists, annotationArgs{Annotation: annotation}, &out)
	return out.Exists, err
}
