package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Record struct {
	Id              uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LibraryID       int            `gorm:"not null;uniqueIndex:idx_records_library_key"`
	Key             string         `gorm:"type:varchar(16);not null;uniqueIndex:idx_records_library_key"`
	ItemType        string         `gorm:"type:varchar(64)"`
	Title           string         `gorm:"type:text;not null"`
	NormalizedTitle string         `gorm:"type:text;index"`
	Date            string         `gorm:"type:varchar(64)"`
	Year            string         `gorm:"type:varchar(4);index"`
	DOI             string         `gorm:"column:doi;type:varchar(255);index"`
	ISBN            string         `gorm:"column:isbn;type:varchar(13);index"`
	Abstract        string         `gorm:"type:text"`
	Publication     string         `gorm:"type:text"`
	URL             string         `gorm:"column:url;type:text"`
	SourceID        string         `gorm:"type:varchar(255);index"`
	Creators        datatypes.JSON `gorm:"type:jsonb"`
	CreatorSurnames string         `gorm:"type:text"`
	CollectionKeys  datatypes.JSON `gorm:"type:jsonb"`
	Identifiers     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (Record) TableName() string {
	return "library_records"
}
