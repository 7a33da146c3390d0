package actions

import (
	"time"

	"ai-library-agent/pkg/library"
)

type ActionType string

const (
	TypeCreateItem          ActionType = "create_item"
	TypeHighlightAnnotation ActionType = "highlight_annotation"
	TypeNoteAnnotation      ActionType = "note_annotation"
)

func (t ActionType) IsAnnotation() bool {
	return t == TypeHighlightAnnotation || t == TypeNoteAnnotation
}

func (t ActionType) Known() bool {
	return t == TypeCreateItem || t.IsAnnotation()
}

// CreateItemProposal asks for a new library record.
type CreateItemProposal struct {
	Reference      library.Reference `json:"item" validate:"required"`
	CollectionKeys []string          `json:"collection_keys,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// Position locates an annotation inside a document.
type Position struct {
	PageIndex int         `json:"page_index" validate:"gte=0"`
	Rects     [][]float64 `json:"rects,omitempty"`
}

// AnnotationProposal asks for a highlight or note inside an attachment.
type AnnotationProposal struct {
	Attachment library.Coordinate `json:"attachment" validate:"required"`
	Text       string             `json:"text,omitempty"`
	Comment    string             `json:"comment,omitempty"`
	Color      string             `json:"color,omitempty"`
	Position   Position           `json:"position"`
}

// ResultData carries the concrete identifiers created by applying an action.
// For annotations Key is the annotation key and Attachment its document.
type ResultData struct {
	LibraryID  int                 `json:"library_id"`
	Key        string              `json:"zotero_key"`
	Attachment *library.Coordinate `json:"attachment,omitempty"`
	Existing   bool                `json:"existing,omitempty"`
}

func (r ResultData) Coordinate() library.Coordinate {
	return library.Coordinate{LibraryID: r.LibraryID, Key: r.Key}
}

// ProposedAction is a tentative mutation suggested by the agent.
// Exactly one of CreateItem or Annotation is set, chosen by Type.
type ProposedAction struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"action_type"`
	MessageID  string     `json:"message_id"`
	ToolCallID string     `json:"toolcall_id"`
	Status     Status     `json:"status"`

	CreateItem *CreateItemProposal `json:"-"`
	Annotation *AnnotationProposal `json:"-"`

	ResultData   *ResultData `json:"result_data,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProposedData returns the typed payload for serialization.
func (a *ProposedAction) ProposedData() interface{} {
	if a.CreateItem != nil {
		return a.CreateItem
	}
	return a.Annotation
}

func (a *ProposedAction) clone() *ProposedAction {
	c := *a
	if a.ResultData != nil {
		r := *a.ResultData
		c.ResultData = &r
	}
	if a.CreateItem != nil {
		ci := *a.CreateItem
		ci.CollectionKeys = append([]string(nil), a.CreateItem.CollectionKeys...)
		c.CreateItem = &ci
	}
	if a.Annotation != nil {
		an := *a.Annotation
		c.Annotation = &an
	}
	return &c
}

// Ack is one acknowledgment sent to the origin service.
type Ack struct {
	ActionID   string     `json:"action_id"`
	ResultData ResultData `json:"result_data"`
}
