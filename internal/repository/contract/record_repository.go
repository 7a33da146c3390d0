package contract

import (
	"context"

	"ai-library-agent/internal/entity"
	"ai-library-agent/internal/repository/specification"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, record *entity.Record) error
	Update(ctx context.Context, record *entity.Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Record, error)
	// FindOneUnscoped also returns soft-deleted records.
	FindOneUnscoped(ctx context.Context, specs ...specification.Specification) (*entity.Record, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Record, error)
	// Count includes soft-deleted records so keys are never reused.
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
