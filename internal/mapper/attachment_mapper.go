package mapper

import (
	"time"

	"ai-library-agent/internal/entity"
	"ai-library-agent/internal/model"

	"gorm.io/gorm"
)

type AttachmentMapper struct{}

func NewAttachmentMapper() *AttachmentMapper {
	return &AttachmentMapper{}
}

func (m *AttachmentMapper) ToEntity(a *model.Attachment) *entity.Attachment {
	if a == nil {
		return nil
	}

	var deletedAt *time.Time
	if a.DeletedAt.Valid {
		t := a.DeletedAt.Time
		deletedAt = &t
	}
	var updatedAt *time.Time
	if !a.UpdatedAt.IsZero() {
		t := a.UpdatedAt
		updatedAt = &t
	}

	return &entity.Attachment{
		Id:          a.Id,
		LibraryID:   a.LibraryID,
		Key:         a.Key,
		ParentKey:   a.ParentKey,
		Title:       a.Title,
		ContentType: a.ContentType,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
		IsDeleted:   a.DeletedAt.Valid,
	}
}

func (m *AttachmentMapper) ToModel(a *entity.Attachment) *model.Attachment {
	if a == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if a.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *a.DeletedAt, Valid: true}
	}
	var updatedAt time.Time
	if a.UpdatedAt != nil {
		updatedAt = *a.UpdatedAt
	}

	return &model.Attachment{
		Id:          a.Id,
		LibraryID:   a.LibraryID,
		Key:         a.Key,
		ParentKey:   a.ParentKey,
		Title:       a.Title,
		ContentType: a.ContentType,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
	}
}

func (m *AttachmentMapper) ToEntities(attachments []*model.Attachment) []*entity.Attachment {
	entities := make([]*entity.Attachment, len(attachments))
	for i, a := range attachments {
		entities[i] = m.ToEntity(a)
	}
	return entities
}
