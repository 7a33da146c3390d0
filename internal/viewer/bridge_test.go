package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/library"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeViewer answers requests the way the host viewer script does.
type fakeViewer struct {
	mu       sync.Mutex
	bridge   *Bridge
	offline  bool
	silent   bool
	requests []request
	reply    func(req request) response
}

func (f *fakeViewer) SendOne(userID uuid.UUID, data []byte) bool {
	if f.offline {
		return false
	}
	var fr frame
	if err := json.Unmarshal(data, &fr); err != nil {
		panic(err)
	}
	var req request
	if err := json.Unmarshal(fr.Data, &req); err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.silent {
		return true
	}

	resp := f.reply(req)
	resp.ID = req.ID
	go func() {
		payload, _ := json.Marshal(resp)
		out, _ := json.Marshal(frame{Type: ResponseType, Data: payload})
		f.bridge.HandleMessage(userID, out)
	}()
	return true
}

func newBridge(t *testing.T, reply func(request) response) (*Bridge, *fakeViewer) {
	t.Helper()
	fv := &fakeViewer{reply: reply}
	b := NewBridge(fv, 200*time.Millisecond, logger.NewNopLogger())
	fv.bridge = b
	return b, fv
}

func okData(v interface{}) response {
	raw, _ := json.Marshal(v)
	return response{OK: true, Data: raw}
}

var pdf = library.Coordinate{LibraryID: 1, Key: "PDF00001"}

func TestBridge_IsOpenAndReady(t *testing.T) {
	b, fv := newBridge(t, func(req request) response {
		switch req.Command {
		case cmdIsOpen:
			return okData(map[string]bool{"open": true})
		case cmdIsReady:
			return okData(map[string]bool{"ready": false})
		}
		return response{OK: true}
	})
	v := b.For(uuid.New())

	open, err := v.IsOpen(context.Background(), pdf)
	require.NoError(t, err)
	assert.True(t, open)

	ready, err := v.IsReady(context.Background(), pdf)
	require.NoError(t, err)
	assert.False(t, ready)

	require.Len(t, fv.requests, 2)
	assert.Equal(t, cmdIsOpen, fv.requests[0].Command)
	assert.Zero(t, b.Pending())
}

func TestBridge_InsertAnnotation(t *testing.T) {
	var args insertArgs
	b, _ := newBridge(t, func(req request) response {
		raw, _ := json.Marshal(req.Args)
		_ = json.Unmarshal(raw, &args)
		return okData(map[string]string{"zotero_key": "ANN00001"})
	})

	key, err := b.For(uuid.New()).InsertAnnotation(context.Background(), pdf, actions.TypeNoteAnnotation, actions.AnnotationProposal{
		Attachment: pdf,
		Comment:    "check this",
		Position:   actions.Position{PageIndex: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "ANN00001", key)
	assert.Equal(t, "note", args.AnnotationType)
	assert.Equal(t, 3, args.Position.PageIndex)
	assert.Equal(t, pdf, args.Attachment)
}

func TestBridge_NotFoundMapsToLibraryError(t *testing.T) {
	b, _ := newBridge(t, func(req request) response {
		return response{OK: false, Code: CodeNotFound, Error: "annotation is gone"}
	})

	err := b.For(uuid.New()).DeleteAnnotation(context.Background(), library.Coordinate{LibraryID: 1, Key: "ANN00001"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, library.ErrNotFound))

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, cmdDeleteAnnotation, verr.Command)
}

func TestBridge_OtherErrorsAreNotNotFound(t *testing.T) {
	b, _ := newBridge(t, func(req request) response {
		return response{OK: false, Code: "internal", Error: "boom"}
	})
	err := b.For(uuid.New()).Open(context.Background(), pdf)
	require.Error(t, err)
	assert.False(t, errors.Is(err, library.ErrNotFound))
}

func TestBridge_NoViewer(t *testing.T) {
	b, fv := newBridge(t, nil)
	fv.offline = true
	err := b.For(uuid.New()).Open(context.Background(), pdf)
	assert.ErrorIs(t, err, ErrNoViewer)
	assert.Zero(t, b.Pending())
}

func TestBridge_Timeout(t *testing.T) {
	b, fv := newBridge(t, nil)
	fv.silent = true
	err := b.For(uuid.New()).NavigateToPage(context.Background(), pdf, 2)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, b.Pending())
}

func TestBridge_ContextCancel(t *testing.T) {
	b, fv := newBridge(t, nil)
	fv.silent = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.For(uuid.New()).AnnotationExists(ctx, pdf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBridge_IgnoresForeignFrames(t *testing.T) {
	b, _ := newBridge(t, nil)
	b.HandleMessage(uuid.New(), []byte(`{"type":"chat.input","data":{}}`))
	b.HandleMessage(uuid.New(), []byte(`not json`))
	b.HandleMessage(uuid.New(), []byte(`{"type":"viewer.response","data":{"id":"unknown","ok":true}}`))
	assert.Zero(t, b.Pending())
}
