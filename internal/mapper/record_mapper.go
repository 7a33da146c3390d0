package mapper

import (
	"encoding/json"
	"strings"
	"time"

	"ai-library-agent/internal/entity"
	"ai-library-agent/internal/model"
	"ai-library-agent/pkg/library"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RecordMapper struct{}

func NewRecordMapper() *RecordMapper {
	return &RecordMapper{}
}

func (m *RecordMapper) ToEntity(r *model.Record) *entity.Record {
	if r == nil {
		return nil
	}

	var deletedAt *time.Time
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		updatedAt = &t
	}

	var creators []library.Creator
	if len(r.Creators) > 0 {
		_ = json.Unmarshal(r.Creators, &creators)
	}
	var collections []string
	if len(r.CollectionKeys) > 0 {
		_ = json.Unmarshal(r.CollectionKeys, &collections)
	}
	var identifiers map[string]string
	if len(r.Identifiers) > 0 {
		_ = json.Unmarshal(r.Identifiers, &identifiers)
	}

	return &entity.Record{
		Id:              r.Id,
		LibraryID:       r.LibraryID,
		Key:             r.Key,
		ItemType:        r.ItemType,
		Title:           r.Title,
		NormalizedTitle: r.NormalizedTitle,
		Date:            r.Date,
		Year:            r.Year,
		DOI:             r.DOI,
		ISBN:            r.ISBN,
		Abstract:        r.Abstract,
		Publication:     r.Publication,
		URL:             r.URL,
		SourceID:        r.SourceID,
		Creators:        creators,
		CreatorSurnames: strings.Fields(r.CreatorSurnames),
		CollectionKeys:  collections,
		Identifiers:     identifiers,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       updatedAt,
		DeletedAt:       deletedAt,
		IsDeleted:       r.DeletedAt.Valid,
	}
}

func (m *RecordMapper) ToModel(r *entity.Record) *model.Record {
	if r == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if r.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *r.DeletedAt, Valid: true}
	} else if r.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if r.UpdatedAt != nil {
		updatedAt = *r.UpdatedAt
	}

	return &model.Record{
		Id:              r.Id,
		LibraryID:       r.LibraryID,
		Key:             r.Key,
		ItemType:        r.ItemType,
		Title:           r.Title,
		NormalizedTitle: r.NormalizedTitle,
		Date:            r.Date,
		Year:            r.Year,
		DOI:             r.DOI,
		ISBN:            r.ISBN,
		Abstract:        r.Abstract,
		Publication:     r.Publication,
		URL:             r.URL,
		SourceID:        r.SourceID,
		Creators:        toJSON(r.Creators),
		CreatorSurnames: strings.Join(r.CreatorSurnames, " "),
		CollectionKeys:  toJSON(r.CollectionKeys),
		Identifiers:     toJSON(r.Identifiers),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       updatedAt,
		DeletedAt:       deletedAt,
	}
}

func (m *RecordMapper) ToEntities(records []*model.Record) []*entity.Record {
	entities := make([]*entity.Record, len(records))
	for i, r := range records {
		entities[i] = m.ToEntity(r)
	}
	return entities
}

func toJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return datatypes.JSON(b)
}
