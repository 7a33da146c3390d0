package contract

import (
	"context"

	"ai-library-agent/internal/entity"
	"ai-library-agent/internal/repository/specification"
)

type AttachmentRepository interface {
	Save(ctx context.Context, attachment *entity.Attachment) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Attachment, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Attachment, error)
}
