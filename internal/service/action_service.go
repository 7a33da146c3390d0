package service

import (
	"context"

	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/internal/repository/memory"
	"ai-library-agent/pkg/actions"

	"github.com/google/uuid"
)

type IActionService interface {
	List(ctx context.Context, userID uuid.UUID, key string, req *dto.ListActionsRequest) ([]*dto.ActionResponse, error)
	Show(ctx context.Context, userID uuid.UUID, key, id string) (*dto.ActionResponse, error)
	Apply(ctx context.Context, userID uuid.UUID, key, id string) (*dto.ActionResponse, error)
	ApplyAll(ctx context.Context, userID uuid.UUID, key string, req *dto.ApplyAllRequest) (*dto.ApplyAllResponse, error)
	Reject(ctx context.Context, userID uuid.UUID, key, id string) (*dto.ActionResponse, error)
	Undo(ctx context.Context, userID uuid.UUID, key, id string) (*dto.ActionResponse, error)
	MarkError(ctx context.Context, userID uuid.UUID, key string, req *dto.MarkErrorRequest) ([]*dto.ActionResponse, error)
	RetryAcks(ctx context.Context, userID uuid.UUID, key string) (*dto.AckRetryResponse, error)
	Validate(ctx context.Context, userID uuid.UUID, key string) (*dto.ValidateActionsResponse, error)
}

type actionService struct {
	workspaces *memory.WorkspaceRepository
	logger     logger.ILogger
}

func NewActionService(workspaces *memory.WorkspaceRepository, log logger.ILogger) IActionService {
	return &actionService{
		workspaces: workspaces,
		logger:     log,
	}
}

func (s *actionService) List(ctx context.Context, userID uuid.UUID, key string, req *dto.ListActionsRequest) ([]*dto.ActionResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}

	pred := func(a *actions.ProposedAction) bool {
		if req.ActionType != "" && a.Type != actions.ActionType(req.ActionType) {
			return false
		}
		return req.Status == "" || a.Status == actions.Status(req.Status)
	}

	var found []*actions.ProposedAction
	if req.ToolCallID != "" {
		found = ws.Actions.ByToolCall(req.ToolCallID, pred)
	} else {
		for _, a := range ws.Actions.All() {
			if pred(a) {
				found = append(found, a)
			}
		}
	}

	out := make([]*dto.ActionResponse, 0, len(found))
	for _, a := range found {
		out = append(out, toActionResponse(a, ws.Reconciler.IsBusy(a.ID)))
	}
	return out, nil
}

func (s *actionService) Show(ctx context.Context, userID uuid.UUID, key, id string) (*dto.ActionResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	a, ok := ws.Actions.Get(id)
	if !ok {
		return nil, actions.ErrNotFound
	}
	return toActionResponse(a, ws.Reconciler.IsBusy(id)), nil
}

// Apply applies one action. A failed apply leaves the action in error
// status; the returned error carries the cause.
func (s *actionService) Apply(ctx context.Context, userID uuid.UUID, key, id string) (*dto.ActionResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	if _, err := ws.Reconciler.Apply(ctx, id); err != nil {
		return nil, err
	}
	return s.Show(ctx, userID, key, id)
}

func (s *actionService) ApplyAll(ctx context.Context, userID uuid.UUID, key string, req *dto.ApplyAllRequest) (*dto.ApplyAllResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	res := ws.Reconciler.ApplyAll(ctx, req.ActionIDs)
	s.logger.Info("ActionService", "Apply all finished", map[string]interface{}{
		"thread":  key,
		"applied": len(res.Applied),
		"failed":  len(res.Failed),
		"skipped": len(res.Skipped),
	})
	return &dto.ApplyAllResponse{
		Applied:  res.Applied,
		Failed:   res.Failed,
		Skipped:  res.Skipped,
		Acked:    res.Acked,
		AckError: res.AckError,
	}, nil
}

func (s *actionService) Reject(ctx context.Context, userID uuid.UUID, key, id string) (*dto.ActionResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	if err := ws.Reconciler.Reject(ctx, id); err != nil {
		return nil, err
	}
	return s.Show(ctx, userID, key, id)
}

func (s *actionService) Undo(ctx context.Context, userID uuid.UUID, key, id string) (*dto.ActionResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	if err := ws.Reconciler.Undo(ctx, id); err != nil {
		return nil, err
	}
	return s.Show(ctx, userID, key, id)
}

func (s *actionService) MarkError(ctx context.Context, userID uuid.UUID, key string, req *dto.MarkErrorRequest) ([]*dto.ActionResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	if err := ws.Reconciler.MarkError(req.ActionIDs, req.Message); err != nil {
		return nil, err
	}
	out := make([]*dto.ActionResponse, 0, len(req.ActionIDs))
	for _, id := range req.ActionIDs {
		if a, ok := ws.Actions.Get(id); ok {
			out = append(out, toActionResponse(a, false))
		}
	}
	return out, nil
}

func (s *actionService) RetryAcks(ctx context.Context, userID uuid.UUID, key string) (*dto.AckRetryResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	acked, err := ws.Reconciler.RetryAcks(ctx)
	if err != nil {
		s.logger.Warn("ActionService", "Acknowledgment retry incomplete", map[string]interface{}{
			"thread": key,
			"error":  err.Error(),
		})
	}
	res := &dto.AckRetryResponse{Acked: acked, Pending: ws.Reconciler.PendingAcks()}
	if res.Acked == nil {
		res.Acked = []string{}
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res, nil
}

func (s *actionService) Validate(ctx context.Context, userID uuid.UUID, key string) (*dto.ValidateActionsResponse, error) {
	ws, err := findWorkspace(s.workspaces, userID, key)
	if err != nil {
		return nil, err
	}
	report, err := ws.Reconciler.Validate(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.ValidateActionsResponse{
		Checked: report.Checked,
		Undone:  report.Undone,
		Skipped: report.Skipped,
	}, nil
}

func toActionResponse(a *actions.ProposedAction, busy bool) *dto.ActionResponse {
	return &dto.ActionResponse{
		ID:           a.ID,
		ActionType:   string(a.Type),
		MessageID:    a.MessageID,
		ToolCallID:   a.ToolCallID,
		Status:       string(a.Status),
		ProposedData: a.ProposedData(),
		ResultData:   a.ResultData,
		ErrorMessage: a.ErrorMessage,
		Busy:         busy,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
