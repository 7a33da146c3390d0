package thread

import (
	"context"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/agentstream"
	"ai-library-agent/pkg/citation"
	"ai-library-agent/pkg/library"
)

// AttachmentTitler resolves a warning attachment to a display title.
type AttachmentTitler interface {
	AttachmentTitle(ctx context.Context, c library.Coordinate) (string, error)
}

// Change kinds passed to Binding.OnChange.
const (
	ChangeThread    = "thread"
	ChangeMessage   = "message"
	ChangeToolCall  = "toolcall"
	ChangeActions   = "actions"
	ChangeCitations = "citations"
	ChangeDone      = "done"
	ChangeError     = "error"
)

// Binding connects stream events to a thread's state and action store.
type Binding struct {
	State   *State
	Actions *actions.Store

	// Titles is optional; unresolved attachments keep an empty title.
	Titles AttachmentTitler

	OnChange      func(kind string)
	OnDecodeError func(event string, err error)
}

func (b Binding) notify(kind string) {
	if b.OnChange != nil {
		b.OnChange(kind)
	}
}

// Handlers returns stream handlers that mutate the bound state. ctx bounds
// attachment title lookups.
func (b Binding) Handlers(ctx context.Context) agentstream.Handlers {
	return agentstream.Handlers{
		OnThread: func(id string) {
			b.State.SetThreadID(id)
			b.notify(ChangeThread)
		},
		OnDelta: func(d agentstream.DeltaEvent) {
			b.State.ApplyDelta(d)
			b.notify(ChangeMessage)
		},
		OnMessage: func(m agentstream.MessagePayload) {
			b.State.UpsertMessage(m)
			b.notify(ChangeMessage)
		},
		OnToolCall: func(tc agentstream.ToolCallPayload) {
			b.State.MergeToolCall(tc)
			b.notify(ChangeToolCall)
		},
		OnProposedActions: func(proposed []*actions.ProposedAction) {
			active := b.State.ActiveMessageID()
			for _, a := range proposed {
				if a.MessageID == "" {
					a.MessageID = active
				}
			}
			if b.Actions.Add(proposed...) > 0 {
				b.notify(ChangeActions)
			}
		},
		OnCitation: func(c citation.Citation) {
			if b.State.AddCitation(c) {
				b.notify(ChangeCitations)
			}
		},
		OnComplete: func(messageID string) {
			b.State.Complete(messageID)
			b.notify(ChangeMessage)
		},
		OnDone: func(messageID string) {
			b.State.Done(messageID)
			b.notify(ChangeDone)
		},
		OnError: func(se *agentstream.StreamError) {
			b.State.Fail(se)
			b.notify(ChangeError)
		},
		OnWarning: func(w agentstream.WarningEvent) {
			b.State.AddWarning(w.MessageID, b.resolveWarning(ctx, w))
			b.notify(ChangeMessage)
		},
		OnDecodeError: b.OnDecodeError,
	}
}

func (b Binding) resolveWarning(ctx context.Context, w agentstream.WarningEvent) Warning {
	out := Warning{
		Type:        w.Type,
		Message:     w.Message,
		Attachments: append([]library.Coordinate(nil), w.Attachments...),
	}
	if len(w.Attachments) == 0 {
		return out
	}
	out.AttachmentTitles = make([]string, len(w.Attachments))
	if b.Titles == nil {
		return out
	}
	for i, c := range w.Attachments {
		title, err := b.Titles.AttachmentTitle(ctx, c)
		if err != nil {
			continue
		}
		out.AttachmentTitles[i] = title
	}
	return out
}
