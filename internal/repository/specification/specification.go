package specification

import "gorm.io/gorm"

// Specification narrows a gorm query.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
