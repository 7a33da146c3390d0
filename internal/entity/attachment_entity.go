package entity

import (
	"time"

	"github.com/google/uuid"
)

type Attachment struct {
	Id          uuid.UUID
	LibraryID   int
	Key         string
	ParentKey   string
	Title       string
	ContentType string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
}
