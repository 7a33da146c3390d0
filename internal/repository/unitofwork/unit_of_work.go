package unitofwork

import (
	"context"

	"ai-library-agent/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	RecordRepository() contract.RecordRepository
	AttachmentRepository() contract.AttachmentRepository
}
