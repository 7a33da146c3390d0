package specification

import (
	"gorm.io/gorm"
)

// ByLibraryKey matches a row by its library coordinate.
type ByLibraryKey struct {
	LibraryID int
	Key       string
}

func (s ByLibraryKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("library_id = ? AND key = ?", s.LibraryID, s.Key)
}

type ByLibrary struct {
	LibraryID int
}

func (s ByLibrary) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("library_id = ?", s.LibraryID)
}

type ByDOI struct {
	DOI string
}

func (s ByDOI) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("doi = ?", s.DOI)
}

type ByISBN struct {
	ISBN string
}

func (s ByISBN) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("isbn = ?", s.ISBN)
}

type ByNormalizedTitle struct {
	Title string
}

func (s ByNormalizedTitle) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("normalized_title = ?", s.Title)
}

// ByYearOrUnknown keeps rows of the given year and rows without a year.
type ByYearOrUnknown struct {
	Year string
}

func (s ByYearOrUnknown) Apply(db *gorm.DB) *gorm.DB {
	if s.Year == "" {
		return db
	}
	return db.Where("(year = ? OR year = '')", s.Year)
}

type BySourceID struct {
	SourceID string
}

func (s BySourceID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("source_id = ?", s.SourceID)
}

type ByParentKey struct {
	ParentKey string
}

func (s ByParentKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("parent_key = ?", s.ParentKey)
}
