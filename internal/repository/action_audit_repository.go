package repository

import (
	"context"

	"ai-library-agent/internal/model"
)

type ActionAuditRepository interface {
	Create(ctx context.Context, log *model.ActionAuditLog) error
	FindByThread(ctx context.Context, userID, threadKey string, limit, offset int) ([]model.ActionAuditLog, int64, error)
	FindByAction(ctx context.Context, userID, threadKey, actionID string) ([]model.ActionAuditLog, error)
}
