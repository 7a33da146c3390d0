package actions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const createItemJSON = `{
	"id": "act-1",
	"action_type": "create_item",
	"message_id": "m1",
	"toolcall_id": "tc1",
	"proposed_data": {
		"item": {"source_id": "oa:W123", "title": "A Study", "doi": "10.1/abc",
			"creators": [{"first_name": "Ada", "last_name": "Lovelace"}]},
		"collection_keys": ["COLL0001"]
	}
}`

const highlightJSON = `{
	"id": "act-2",
	"action_type": "highlight_annotation",
	"toolcall_id": "tc2",
	"proposed_data": {
		"attachment": {"library_id": 1, "zotero_key": "ATTACH01"},
		"text": "important sentence",
		"position": {"page_index": 3, "rects": [[1, 2, 3, 4]]}
	}
}`

func TestParseProposal_CreateItem(t *testing.T) {
	a, err := ParseProposal(json.RawMessage(createItemJSON))
	require.NoError(t, err)

	assert.Equal(t, "act-1", a.ID)
	assert.Equal(t, TypeCreateItem, a.Type)
	assert.Equal(t, StatusPending, a.Status)
	require.NotNil(t, a.CreateItem)
	assert.Nil(t, a.Annotation)
	assert.Equal(t, "oa:W123", a.CreateItem.Reference.SourceID)
	assert.Equal(t, []string{"COLL0001"}, a.CreateItem.CollectionKeys)
}

func TestParseProposal_Annotation(t *testing.T) {
	a, err := ParseProposal(json.RawMessage(highlightJSON))
	require.NoError(t, err)

	require.NotNil(t, a.Annotation)
	assert.Equal(t, 3, a.Annotation.Position.PageIndex)
	assert.Equal(t, "ATTACH01", a.Annotation.Attachment.Key)
}

func TestParseProposal_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"unknown discriminator", `{"id":"x","action_type":"delete_everything","proposed_data":{}}`, ErrUnknownActionType},
		{"missing id", `{"action_type":"create_item","proposed_data":{}}`, ErrInvalidProposal},
		{"missing title", `{"id":"x","action_type":"create_item","proposed_data":{"item":{"source_id":"s"}}}`, ErrInvalidProposal},
		{"highlight without text", `{"id":"x","action_type":"highlight_annotation","proposed_data":{"attachment":{"library_id":1,"zotero_key":"K"}}}`, ErrInvalidProposal},
		{"not json", `{`, ErrInvalidProposal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProposal(json.RawMessage(tt.payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseProposals_ArrayKeepsValidEntries(t *testing.T) {
	raw := "[" + createItemJSON + `,{"id":"bad","action_type":"nope","proposed_data":{}},` + highlightJSON + "]"

	got, err := ParseProposals(json.RawMessage(raw))
	assert.ErrorIs(t, err, ErrUnknownActionType)
	require.Len(t, got, 2)
	assert.Equal(t, "act-1", got[0].ID)
	assert.Equal(t, "act-2", got[1].ID)
}

func TestParseProposals_SingleObject(t *testing.T) {
	got, err := ParseProposals(json.RawMessage(createItemJSON))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
