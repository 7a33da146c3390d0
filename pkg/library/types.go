package library

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Store when the addressed record or annotation
// does not exist (or no longer exists).
var ErrNotFound = errors.New("library: not found")

// Coordinate addresses one record inside the target library.
type Coordinate struct {
	LibraryID int    `json:"library_id" validate:"required,gt=0"`
	Key       string `json:"zotero_key" validate:"required"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%d-%s", c.LibraryID, c.Key)
}

// IsZero reports whether the coordinate is unset.
func (c Coordinate) IsZero() bool {
	return c.LibraryID == 0 && c.Key == ""
}

type Creator struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Name        string `json:"name,omitempty"` // single-field creators (institutions)
	CreatorType string `json:"creator_type,omitempty"`
}

// Surname returns the family name, falling back to the single-field name.
func (c Creator) Surname() string {
	if c.LastName != "" {
		return c.LastName
	}
	return c.Name
}

// Reference is an external bibliographic reference proposed by the agent.
// SourceID is the reference's own identifier and the resolver cache key.
type Reference struct {
	SourceID    string    `json:"source_id" validate:"required"`
	ItemType    string    `json:"item_type,omitempty"`
	Title       string    `json:"title" validate:"required"`
	Date        string    `json:"date,omitempty"`
	DOI         string    `json:"doi,omitempty"`
	ISBN        string    `json:"isbn,omitempty"`
	Creators    []Creator `json:"creators,omitempty"`
	Abstract    string    `json:"abstract,omitempty"`
	Publication string    `json:"publication,omitempty"`
	URL         string    `json:"url,omitempty"`

	// Candidate is a backend-suggested library match that must be validated
	// before it is trusted.
	Candidate *Coordinate `json:"library_candidate,omitempty"`
}

// Record is the subset of a stored library record the core needs.
type Record struct {
	Coordinate
	Title     string
	SourceID  string
	IsDeleted bool
}

// SearchQuery is the structured query used to find an existing record.
// All fields are already normalized.
type SearchQuery struct {
	Title    string   `json:"title"`
	Year     string   `json:"date"`
	DOI      string   `json:"doi"`
	ISBN     string   `json:"isbn"`
	Creators []string `json:"creators"`
}

// IsEmpty reports whether the query carries nothing to match on.
func (q SearchQuery) IsEmpty() bool {
	return q.Title == "" && q.DOI == "" && q.ISBN == ""
}

// Finder is the read side of the library used for existence checks.
type Finder interface {
	GetRecord(ctx context.Context, c Coordinate) (*Record, error)
	IsSoftDeleted(ctx context.Context, c Coordinate) (bool, error)
	Search(ctx context.Context, q SearchQuery) (*Coordinate, error)
}

// Store is the library capability the reconciler mutates.
type Store interface {
	Finder
	CreateRecord(ctx context.Context, ref Reference, collections []string) (Coordinate, error)
	DeleteRecord(ctx context.Context, c Coordinate) error
	IndexForSearch(ctx context.Context, c Coordinate) error
}
