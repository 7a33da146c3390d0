package entity

import (
	"time"

	"ai-library-agent/pkg/library"

	"github.com/google/uuid"
)

type Record struct {
	Id              uuid.UUID
	LibraryID       int
	Key             string
	ItemType        string
	Title           string
	NormalizedTitle string
	Date            string
	Year            string
	DOI             string
	ISBN            string
	Abstract        string
	Publication     string
	URL             string
	SourceID        string
	Creators        []library.Creator
	CreatorSurnames []string
	CollectionKeys  []string
	Identifiers     map[string]string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
	DeletedAt       *time.Time
	IsDeleted       bool
}

func (r *Record) Coordinate() library.Coordinate {
	return library.Coordinate{LibraryID: r.LibraryID, Key: r.Key}
}
