package service

import (
	"context"
	"fmt"

	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/internal/repository/memory"
	"ai-library-agent/pkg/agentstream"
	"ai-library-agent/pkg/thread"
	"ai-library-agent/pkg/workspace"

	"github.com/google/uuid"
)

// CompletionStreamer starts and cancels streaming completions per thread key.
type CompletionStreamer interface {
	Start(ctx context.Context, threadKey string, payload interface{}, h agentstream.Handlers) *agentstream.Session
	Cancel(threadKey string) bool
}

type IThreadService interface {
	StartCompletion(ctx context.Context, userID uuid.UUID, req *dto.StartCompletionRequest) (*dto.StartCompletionResponse, error)
	CancelCompletion(ctx context.Context, userID uuid.UUID, key string) (*dto.CancelCompletionResponse, error)
	Snapshot(ctx context.Context, userID uuid.UUID, key string) (*dto.ThreadSnapshotResponse, error)
	Close(ctx context.Context, userID uuid.UUID, key string) error
}

type threadService struct {
	workspaces *memory.WorkspaceRepository
	newWs      WorkspaceFactory
	stream     CompletionStreamer
	titles     thread.AttachmentTitler
	publisher  IPublisherService
	libraryID  int
	logger     logger.ILogger
}

func NewThreadService(
	workspaces *memory.WorkspaceRepository,
	newWs WorkspaceFactory,
	stream CompletionStreamer,
	titles thread.AttachmentTitler,
	publisher IPublisherService,
	libraryID int,
	log logger.ILogger,
) IThreadService {
	return &threadService{
		workspaces: workspaces,
		newWs:      newWs,
		stream:     stream,
		titles:     titles,
		publisher:  publisher,
		libraryID:  libraryID,
		logger:     log,
	}
}

func (s *threadService) StartCompletion(ctx context.Context, userID uuid.UUID, req *dto.StartCompletionRequest) (*dto.StartCompletionResponse, error) {
	key := req.ThreadKey
	if key == "" {
		key = uuid.NewString()
	}

	ws := s.workspaces.GetOrCreate(key, func() *workspace.Workspace {
		w := s.newWs(key, userID)
		w.Reconciler.OnChange(func(ids []string) {
			s.notify(w, thread.ChangeActions, ids)
		})
		return w
	})
	if ws.UserID != userID.String() {
		return nil, fmt.Errorf("%w: %s", ErrThreadForbidden, key)
	}

	ws.State.BeginStream()
	payload := dto.CompletionPayload{
		ThreadID:    ws.State.ThreadID(),
		LibraryID:   s.libraryID,
		Content:     req.Content,
		Attachments: req.Attachments,
		Options:     req.Options,
	}

	// The stream outlives the request that started it.
	streamCtx := context.WithoutCancel(ctx)
	binding := thread.Binding{
		State:   ws.State,
		Actions: ws.Actions,
		Titles:  s.titles,
		OnChange: func(kind string) {
			s.notify(ws, kind, nil)
		},
		OnDecodeError: func(event string, err error) {
			s.logger.Warn("ThreadService", "Skipped malformed stream event", map[string]interface{}{
				"thread": key,
				"event":  event,
				"error":  err.Error(),
			})
		},
	}
	session := s.stream.Start(streamCtx, key, payload, binding.Handlers(streamCtx))

	s.logger.Info("ThreadService", "Completion started", map[string]interface{}{
		"thread":     key,
		"user_id":    userID,
		"generation": session.Generation,
	})

	return &dto.StartCompletionResponse{
		ThreadKey:  key,
		ThreadID:   payload.ThreadID,
		Generation: session.Generation,
	}, nil
}

func (s *threadService) CancelCompletion(ctx context.Context, userID uuid.UUID, key string) (*dto.CancelCompletionResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	cancelled := s.stream.Cancel(key)
	if cancelled {
		ws.State.Done("")
		s.notify(ws, thread.ChangeDone, nil)
	}
	return &dto.CancelCompletionResponse{ThreadKey: key, Cancelled: cancelled}, nil
}

func (s *threadService) Snapshot(ctx context.Context, userID uuid.UUID, key string) (*dto.ThreadSnapshotResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	snap := ws.State.Snapshot()
	all := ws.Actions.All()
	acts := make([]*dto.ActionResponse, 0, len(all))
	for _, a := range all {
		acts = append(acts, toActionResponse(a, ws.Reconciler.IsBusy(a.ID)))
	}
	return &dto.ThreadSnapshotResponse{
		ThreadKey:       key,
		ThreadID:        snap.ThreadID,
		Streaming:       snap.Streaming,
		ActiveMessageID: snap.ActiveMessageID,
		Messages:        snap.Messages,
		ToolCalls:       snap.ToolCalls,
		Citations:       ws.CitationEntries(),
		Actions:         acts,
	}, nil
}

// Close cancels any live stream and drops the thread's workspace.
func (s *threadService) Close(ctx context.Context, userID uuid.UUID, key string) error {
	if _, err := findWorkspace(s.workspaces, userID, key); err != nil {
		return err
	}
	s.stream.Cancel(key)
	s.workspaces.Delete(key)
	return nil
}

func (s *threadService) notify(ws *workspace.Workspace, kind string, actionIDs []string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(context.Background(), WorkspaceUpdate{
		UserID: ws.UserID,
		Update: dto.ThreadUpdateMessage{ThreadKey: ws.Key, Kind: kind, ActionIDs: actionIDs},
	})
	if err != nil {
		s.logger.Warn("ThreadService", "Failed to publish thread update", map[string]interface{}{
			"thread": ws.Key,
			"kind":   kind,
			"error":  err.Error(),
		})
	}
}
