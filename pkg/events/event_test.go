package events

import (
	"testing"
	"time"

	"ai-library-agent/pkg/actions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKeepsTypeAndTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := BaseEvent{Type: TypeActionApplied, Data: map[string]interface{}{"action_id": "a1"}, OccurredAt: at}

	raw, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, TypeActionApplied, out.EventType())
	assert.True(t, at.Equal(out.Timestamp()))
	assert.Equal(t, "a1", out.Payload()["action_id"])
}

func TestDecodeRejectsUntyped(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	assert.Error(t, err)
}

func TestNewActionEvent(t *testing.T) {
	a := &actions.ProposedAction{
		ID:         "a1",
		Type:       actions.TypeCreateItem,
		Status:     actions.StatusApplied,
		ResultData: &actions.ResultData{LibraryID: 1, Key: "ABCD2345"},
	}
	ev, ok := NewActionEvent("u1", "t1", a)
	require.True(t, ok)
	assert.Equal(t, TypeActionApplied, ev.Type)
	assert.Equal(t, "ABCD2345", ev.Data["zotero_key"])
	assert.False(t, ev.OccurredAt.IsZero())

	a.Status = actions.StatusPending
	a.ResultData = nil
	_, ok = NewActionEvent("u1", "t1", a)
	assert.False(t, ok)
}
