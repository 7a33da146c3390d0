package dto

import (
	"time"

	"ai-library-agent/pkg/library"
)

type SaveAttachmentRequest struct {
	Key         string `json:"zotero_key" validate:"required"`
	ParentKey   string `json:"parent_key"`
	Title       string `json:"title"`
	ContentType string `json:"content_type"`
}

type AttachmentResponse struct {
	LibraryID   int    `json:"library_id"`
	Key         string `json:"zotero_key"`
	ParentKey   string `json:"parent_key,omitempty"`
	Title       string `json:"title"`
	ContentType string `json:"content_type,omitempty"`
}

type RecordResponse struct {
	LibraryID int               `json:"library_id"`
	Key       string            `json:"zotero_key"`
	ItemType  string            `json:"item_type"`
	Title     string            `json:"title"`
	Date      string            `json:"date,omitempty"`
	DOI       string            `json:"doi,omitempty"`
	ISBN      string            `json:"isbn,omitempty"`
	SourceID  string            `json:"source_id,omitempty"`
	Creators  []library.Creator `json:"creators"`
	IsDeleted bool              `json:"is_deleted"`
	CreatedAt time.Time         `json:"created_at"`
}
