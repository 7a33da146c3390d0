package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/agentstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCompletion_StreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: thread\ndata: {\"thread_id\":\"t1\"}\n\n")
		w.(http.Flusher).Flush()
		io.WriteString(w, "event: done\ndata: {}\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	body, err := c.OpenCompletion(context.Background(), map[string]string{"message": "hello"})
	require.NoError(t, err)
	defer body.Close()

	dec := agentstream.NewDecoder(body)
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "thread", ev.Name)
	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "done", ev.Name)
}

func TestOpenCompletion_StatusIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").OpenCompletion(context.Background(), nil)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.HTTPStatus())
	assert.Equal(t, "slow down", se.Body)
	assert.Equal(t, agentstream.ErrorRateLimit, agentstream.ClassifyError(err).Kind)
}

func TestAcknowledge_PartialBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ackPath, r.URL.Path)
		var req ackRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Acks, 2)
		assert.Equal(t, "K1", req.Acks[0].ResultData.Key)

		json.NewEncoder(w).Encode(ackResponse{
			Acknowledged: []string{req.Acks[0].ActionID},
			Failed:       []ackFailure{{ActionID: req.Acks[1].ActionID, Error: "stale"}},
		})
	}))
	defer srv.Close()

	ids, err := NewClient(srv.URL, "").Acknowledge(context.Background(), []actions.Ack{
		{ActionID: "a1", ResultData: actions.ResultData{LibraryID: 1, Key: "K1"}},
		{ActionID: "a2", ResultData: actions.ResultData{LibraryID: 1, Key: "K2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)
}

func TestAcknowledge_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Acknowledge(context.Background(), []actions.Ack{{ActionID: "a1"}})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
}

func TestIndexRecord(t *testing.T) {
	var got IndexDocument
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, indexPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").IndexRecord(context.Background(), IndexDocument{
		LibraryID: 1, Key: "ABCD1234", Title: "Title", Creators: []string{"Lovelace"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", got.Key)
	assert.True(t, strings.EqualFold("title", got.Title))
}
