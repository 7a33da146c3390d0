package actions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrInvalidProposal   = errors.New("invalid proposal")
)

var validate = validator.New()

type envelope struct {
	ID           string          `json:"id" validate:"required"`
	ActionType   ActionType      `json:"action_type" validate:"required"`
	MessageID    string          `json:"message_id"`
	ToolCallID   string          `json:"toolcall_id"`
	Status       Status          `json:"status"`
	ProposedData json.RawMessage `json:"proposed_data" validate:"required"`
}

// ParseProposal decodes one proposal payload into a pending ProposedAction.
// The action_type discriminator selects the payload shape; unknown types are
// rejected.
func ParseProposal(raw json.RawMessage) (*ProposedAction, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}

	now := time.Now()
	action := &ProposedAction{
		ID:         env.ID,
		Type:       env.ActionType,
		MessageID:  env.MessageID,
		ToolCallID: env.ToolCallID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	switch env.ActionType {
	case TypeCreateItem:
		var p CreateItemProposal
		if err := decodeStrict(env.ProposedData, &p); err != nil {
			return nil, err
		}
		action.CreateItem = &p
	case TypeHighlightAnnotation, TypeNoteAnnotation:
		var p AnnotationProposal
		if err := decodeStrict(env.ProposedData, &p); err != nil {
			return nil, err
		}
		if env.ActionType == TypeHighlightAnnotation && p.Text == "" {
			return nil, fmt.Errorf("%w: highlight %s has no text", ErrInvalidProposal, env.ID)
		}
		action.Annotation = &p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, env.ActionType)
	}

	return action, nil
}

func decodeStrict(raw json.RawMessage, into interface{}) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	if err := validate.Struct(into); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	return nil
}

// ParseProposals accepts either a single proposal object or an array of them.
// Valid entries are returned even when siblings fail; the failures are joined
// into the returned error.
func ParseProposals(raw json.RawMessage) ([]*ProposedAction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidProposal)
	}
	if trimmed[0] != '[' {
		a, err := ParseProposal(trimmed)
		if err != nil {
			return nil, err
		}
		return []*ProposedAction{a}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	var (
		out  []*ProposedAction
		errs []error
	)
	for _, item := range items {
		a, err := ParseProposal(item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}
	return out, errors.Join(errs...)
}
