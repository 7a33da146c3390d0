package service

import (
	"fmt"

	"ai-library-agent/internal/repository/memory"
	"ai-library-agent/pkg/workspace"

	"github.com/google/uuid"
)

// WorkspaceFactory builds the workspace of a new thread for one user.
type WorkspaceFactory func(key string, userID uuid.UUID) *workspace.Workspace

func findWorkspace(repo *memory.WorkspaceRepository, userID uuid.UUID, key string) (*workspace.Workspace, error) {
	ws, ok := repo.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, key)
	}
	if ws.UserID != userID.String() {
		return nil, fmt.Errorf("%w: %s", ErrThreadForbidden, key)
	}
	return ws, nil
}
