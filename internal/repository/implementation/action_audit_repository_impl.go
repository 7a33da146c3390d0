package implementation

import (
	"context"

	"ai-library-agent/internal/model"
	"ai-library-agent/internal/repository"

	"gorm.io/gorm"
)

type ActionAuditRepositoryImpl struct {
	db *gorm.DB
}

func NewActionAuditRepository(db *gorm.DB) repository.ActionAuditRepository {
	return &ActionAuditRepositoryImpl{db: db}
}

func (r *ActionAuditRepositoryImpl) Create(ctx context.Context, log *model.ActionAuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *ActionAuditRepositoryImpl) FindByThread(ctx context.Context, userID, threadKey string, limit, offset int) ([]model.ActionAuditLog, int64, error) {
	var logs []model.ActionAuditLog
	var total int64

	db := r.db.WithContext(ctx).Model(&model.ActionAuditLog{}).Where("user_id = ? AND thread_key = ?", userID, threadKey)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("occurred_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, total, err
}

func (r *ActionAuditRepositoryImpl) FindByAction(ctx context.Context, userID, threadKey, actionID string) ([]model.ActionAuditLog, error) {
	var logs []model.ActionAuditLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND thread_key = ? AND action_id = ?", userID, threadKey, actionID).
		Order("occurred_at ASC").
		Find(&logs).Error
	return logs, err
}
