package dto

import "ai-library-agent/pkg/library"

type CheckReferenceRequest struct {
	Reference library.Reference `json:"reference" validate:"required"`
}

type CheckBulkReferenceRequest struct {
	References []library.Reference `json:"references" validate:"required,min=1,dive"`
}

type ReferenceStatusResponse struct {
	SourceID string              `json:"source_id"`
	State    string              `json:"state"`
	Found    *library.Coordinate `json:"library_item,omitempty"`
}

type CheckBulkReferenceResponse struct {
	Results []ReferenceStatusResponse `json:"results"`
	Errors  string                    `json:"errors,omitempty"`
}
