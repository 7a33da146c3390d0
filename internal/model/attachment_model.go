package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Attachment struct {
	Id          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LibraryID   int            `gorm:"not null;uniqueIndex:idx_attachments_library_key"`
	Key         string         `gorm:"type:varchar(16);not null;uniqueIndex:idx_attachments_library_key"`
	ParentKey   string         `gorm:"type:varchar(16);index"`
	Title       string         `gorm:"type:text"`
	ContentType string         `gorm:"type:varchar(128)"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (Attachment) TableName() string {
	return "library_attachments"
}
