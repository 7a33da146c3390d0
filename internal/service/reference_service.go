package service

import (
	"context"
	"sort"

	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/library"
	"ai-library-agent/pkg/refresolver"
)

type IReferenceService interface {
	Check(ctx context.Context, req *dto.CheckReferenceRequest) (*dto.ReferenceStatusResponse, error)
	CheckBulk(ctx context.Context, req *dto.CheckBulkReferenceRequest) (*dto.CheckBulkReferenceResponse, error)
	Status(ctx context.Context, sourceID string) *dto.ReferenceStatusResponse
	Invalidate(ctx context.Context, sourceID string)
	Reset(ctx context.Context)
}

type referenceService struct {
	resolver *refresolver.Resolver
	logger   logger.ILogger
}

func NewReferenceService(resolver *refresolver.Resolver, log logger.ILogger) IReferenceService {
	return &referenceService{
		resolver: resolver,
		logger:   log,
	}
}

func (s *referenceService) Check(ctx context.Context, req *dto.CheckReferenceRequest) (*dto.ReferenceStatusResponse, error) {
	c, err := s.resolver.Check(ctx, req.Reference)
	if err != nil {
		return nil, err
	}
	return statusResponse(req.Reference.SourceID, c), nil
}

// CheckBulk reports every reference it could resolve; per-reference failures
// are summarized in Errors and those references keep their current state.
func (s *referenceService) CheckBulk(ctx context.Context, req *dto.CheckBulkReferenceRequest) (*dto.CheckBulkReferenceResponse, error) {
	found, err := s.resolver.CheckBulk(ctx, req.References)

	res := &dto.CheckBulkReferenceResponse{Results: make([]dto.ReferenceStatusResponse, 0, len(req.References))}
	seen := make(map[string]bool, len(req.References))
	for _, ref := range req.References {
		if ref.SourceID == "" || seen[ref.SourceID] {
			continue
		}
		seen[ref.SourceID] = true
		if c, ok := found[ref.SourceID]; ok {
			res.Results = append(res.Results, *statusResponse(ref.SourceID, c))
			continue
		}
		res.Results = append(res.Results, *s.Status(ctx, ref.SourceID))
	}
	sort.SliceStable(res.Results, func(i, j int) bool { return res.Results[i].SourceID < res.Results[j].SourceID })

	if err != nil {
		s.logger.Warn("ReferenceService", "Bulk check partially failed", map[string]interface{}{"error": err.Error()})
		res.Errors = err.Error()
	}
	return res, nil
}

func (s *referenceService) Status(ctx context.Context, sourceID string) *dto.ReferenceStatusResponse {
	l := s.resolver.Lookup(sourceID)
	return &dto.ReferenceStatusResponse{SourceID: sourceID, State: l.State.String(), Found: l.Coordinate}
}

func (s *referenceService) Invalidate(ctx context.Context, sourceID string) {
	s.resolver.Invalidate(sourceID)
}

func (s *referenceService) Reset(ctx context.Context) {
	s.resolver.Reset()
}

func statusResponse(sourceID string, c *library.Coordinate) *dto.ReferenceStatusResponse {
	if c == nil {
		return &dto.ReferenceStatusResponse{SourceID: sourceID, State: refresolver.StateAbsent.String()}
	}
	return &dto.ReferenceStatusResponse{SourceID: sourceID, State: refresolver.StateFound.String(), Found: c}
}
