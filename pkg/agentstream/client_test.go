package agentstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/citation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// queueOpener hands out pre-registered bodies in order.
type queueOpener struct {
	mu     sync.Mutex
	bodies []io.ReadCloser
	err    error
}

func (o *queueOpener) OpenCompletion(_ context.Context, _ interface{}) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	if len(o.bodies) == 0 {
		return nil, errors.New("no body")
	}
	b := o.bodies[0]
	o.bodies = o.bodies[1:]
	return b, nil
}

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

// recorder captures routed events as compact strings.
type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, fmt.Sprintf(format, args...))
}

func (r *recorder) entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnThread: func(id string) { r.add("thread:%s", id) },
		OnDelta:  func(d DeltaEvent) { r.add("delta:%s:%s:%s", d.MessageID, d.Type, d.Delta) },
		OnMessage: func(m MessagePayload) {
			r.add("message:%s", m.ID)
		},
		OnToolCall: func(tc ToolCallPayload) { r.add("toolcall:%s", tc.ID) },
		OnProposedActions: func(a []*actions.ProposedAction) {
			for _, x := range a {
				r.add("proposal:%s", x.ID)
			}
		},
		OnCitation:    func(c citation.Citation) { r.add("citation:%s", c.CitationID) },
		OnComplete:    func(id string) { r.add("complete:%s", id) },
		OnDone:        func(id string) { r.add("done:%s", id) },
		OnError:       func(e *StreamError) { r.add("error:%s", e.Kind) },
		OnWarning:     func(w WarningEvent) { r.add("warning:%s", w.Type) },
		OnDecodeError: func(name string, _ error) { r.add("decode_error:%s", name) },
	}
}

func frame(name, data string) string {
	return "event: " + name + "\ndata: " + data + "\n\n"
}

const proposalFrameData = `[{"id":"p1","action_type":"create_item","toolcall_id":"tc1","proposed_data":{"item":{"source_id":"s1","title":"T"}}},` +
	`{"id":"p2","action_type":"note_annotation","toolcall_id":"tc1","proposed_data":{"attachment":{"library_id":1,"zotero_key":"ATT1"},"comment":"c"}}]`

func TestClient_RoutesEventsInOrder(t *testing.T) {
	body := strings.Join([]string{
		frame("thread", `{"thread_id":"th-1"}`),
		frame("delta", `{"message_id":"m1","type":"reasoning","delta":"hmm"}`),
		frame("delta", `{"message_id":"m1","delta":"Hel"}`),
		frame("delta", `{"message_id":"m1","type":"content","delta":"lo"}`),
		frame("future_event", `{"anything":true}`),
		frame("toolcall", `{not json`),
		frame("toolcall", `{"id":"tc1","name":"search"}`),
		frame("proposed_action", proposalFrameData),
		frame("citation_metadata", `{"citation_id":"c1","source_id":"A"}`),
		frame("warning", `{"type":"low_credits","message":"careful"}`),
		frame("message", `{"id":"m1","role":"assistant","content":"Hello"}`),
		frame("complete", `{"message_id":"m1"}`),
		frame("done", `{"message_id":"m1"}`),
		frame("delta", `{"message_id":"m1","delta":"after done"}`),
	}, "")

	rec := &recorder{}
	c := NewClient(&queueOpener{bodies: []io.ReadCloser{io.NopCloser(strings.NewReader(body))}}, nil)
	s := c.Start(context.Background(), "t1", nil, rec.handlers())
	s.Wait()

	assert.Equal(t, []string{
		"thread:th-1",
		"delta:m1:reasoning:hmm",
		"delta:m1:content:Hel",
		"delta:m1:content:lo",
		"decode_error:toolcall",
		"toolcall:tc1",
		"proposal:p1",
		"proposal:p2",
		"citation:c1",
		"warning:low_credits",
		"message:m1",
		"complete:m1",
		"done:m1",
	}, rec.entries())

	_, live := c.Active("t1")
	assert.False(t, live)
}

func TestClient_ErrorEventEndsSession(t *testing.T) {
	body := frame("delta", `{"message_id":"m1","delta":"x"}`) +
		frame("error", `{"message_id":"m1","type":"rate_limit","message":"slow down"}`) +
		frame("delta", `{"message_id":"m1","delta":"never"}`)

	rec := &recorder{}
	c := NewClient(&queueOpener{bodies: []io.ReadCloser{io.NopCloser(strings.NewReader(body))}}, nil)
	c.Start(context.Background(), "t1", nil, rec.handlers()).Wait()

	assert.Equal(t, []string{"delta:m1:content:x", "error:rate_limit"}, rec.entries())
}

func TestClient_TransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		opener *queueOpener
		want   string
	}{
		{"auth status", &queueOpener{err: statusErr(401)}, "error:auth"},
		{"rate limited", &queueOpener{err: statusErr(429)}, "error:rate_limit"},
		{"server", &queueOpener{err: statusErr(503)}, "error:server_error"},
		{"bad request", &queueOpener{err: statusErr(422)}, "error:bad_request"},
		{"deadline", &queueOpener{err: context.DeadlineExceeded}, "error:network"},
		{"closed before done", &queueOpener{bodies: []io.ReadCloser{io.NopCloser(strings.NewReader(frame("delta", `{"message_id":"m","delta":"x"}`)))}}, "error:network"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			NewClient(tt.opener, nil).Start(context.Background(), "t", nil, rec.handlers()).Wait()
			entries := rec.entries()
			require.NotEmpty(t, entries)
			assert.Equal(t, tt.want, entries[len(entries)-1])
		})
	}
}

func TestClient_CancelDropsStaleEvents(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	rec := &recorder{}
	c := NewClient(&queueOpener{bodies: []io.ReadCloser{pr}}, nil)
	s := c.Start(context.Background(), "t1", nil, rec.handlers())

	_, err := pw.Write([]byte(frame("delta", `{"message_id":"m1","delta":"a"}`)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.entries()) == 1 }, time.Second, 5*time.Millisecond)

	s.Cancel()
	s.Wait()
	assert.True(t, s.Cancelled())

	delivered := c.deliver(s, Event{Name: EventDelta, Data: []byte(`{"message_id":"m1","delta":"late"}`)})
	assert.False(t, delivered)
	assert.Equal(t, []string{"delta:m1:content:a"}, rec.entries())
}

func TestClient_NewSessionSupersedesOld(t *testing.T) {
	pr1, pw1 := io.Pipe()
	defer pw1.Close()
	body2 := frame("delta", `{"message_id":"m2","delta":"new"}`) + frame("done", `{}`)

	rec1, rec2 := &recorder{}, &recorder{}
	c := NewClient(&queueOpener{bodies: []io.ReadCloser{pr1, io.NopCloser(strings.NewReader(body2))}}, nil)

	first := c.Start(context.Background(), "t1", nil, rec1.handlers())
	_, err := pw1.Write([]byte(frame("delta", `{"message_id":"m1","delta":"old"}`)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec1.entries()) == 1 }, time.Second, 5*time.Millisecond)

	second := c.Start(context.Background(), "t1", nil, rec2.handlers())
	first.Wait()
	second.Wait()

	assert.True(t, first.Cancelled())
	assert.Greater(t, second.Generation, first.Generation)
	assert.False(t, c.deliver(first, Event{Name: EventDelta, Data: []byte(`{"message_id":"m1","delta":"stale"}`)}))
	assert.Equal(t, []string{"delta:m1:content:old"}, rec1.entries())
	assert.Equal(t, []string{"delta:m2:content:new", "done:"}, rec2.entries())
}

func TestClient_CancelByThreadKey(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	c := NewClient(&queueOpener{bodies: []io.ReadCloser{pr}}, nil)
	s := c.Start(context.Background(), "t1", nil, Handlers{})

	assert.True(t, c.Cancel("t1"))
	s.Wait()
	assert.False(t, c.Cancel("t1"))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorNetwork, ClassifyError(errors.New("dial tcp: connection refused")).Kind)
	assert.Equal(t, ErrorUnknown, ClassifyError(errors.New("weird")).Kind)
	assert.Equal(t, ErrorAuth, ClassifyError(fmt.Errorf("open: %w", statusErr(403))).Kind)
	assert.Nil(t, ClassifyError(nil))
}

func TestParseErrorKind(t *testing.T) {
	assert.Equal(t, ErrorRateLimit, ParseErrorKind("rate_limit"))
	assert.Equal(t, ErrorBadRequest, ParseErrorKind("invalid_request"))
	assert.Equal(t, ErrorServerError, ParseErrorKind("Overloaded"))
	assert.Equal(t, ErrorUnknown, ParseErrorKind("martian"))
}

func TestClient_CancelWaitsForRunningHandler(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var mu sync.Mutex
	var deltas []string
	h := Handlers{OnDelta: func(d DeltaEvent) {
		mu.Lock()
		deltas = append(deltas, d.Delta)
		n := len(deltas)
		mu.Unlock()
		if n == 1 {
			close(entered)
			<-unblock
		}
	}}

	c := NewClient(&queueOpener{bodies: []io.ReadCloser{pr}}, nil)
	s := c.Start(context.Background(), "t1", nil, h)

	_, err := pw.Write([]byte(frame("delta", `{"message_id":"m1","delta":"a"}`)))
	require.NoError(t, err)
	<-entered

	cancelled := make(chan struct{})
	go func() {
		s.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while a handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	<-cancelled
	s.Wait()

	assert.False(t, c.deliver(s, Event{Name: EventDelta, Data: []byte(`{"message_id":"m1","delta":"b"}`)}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a"}, deltas)
}
