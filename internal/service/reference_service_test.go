package service

import (
	"context"
	"errors"
	"testing"

	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/library"
	"ai-library-agent/pkg/refresolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doiFinder struct {
	byDOI map[string]library.Coordinate
	fail  map[string]bool
}

func (f doiFinder) GetRecord(context.Context, library.Coordinate) (*library.Record, error) {
	return nil, library.ErrNotFound
}

func (f doiFinder) IsSoftDeleted(context.Context, library.Coordinate) (bool, error) {
	return false, nil
}

func (f doiFinder) Search(_ context.Context, q library.SearchQuery) (*library.Coordinate, error) {
	if f.fail[q.DOI] {
		return nil, errors.New("search unavailable")
	}
	if c, ok := f.byDOI[q.DOI]; ok {
		return &c, nil
	}
	return nil, nil
}

func TestReferenceService_CheckBulk(t *testing.T) {
	finder := doiFinder{
		byDOI: map[string]library.Coordinate{"10.1234/b": {LibraryID: 1, Key: "BBBB2222"}},
		fail:  map[string]bool{"10.1234/c": true},
	}
	svc := NewReferenceService(refresolver.New(finder, nil), logger.NewNopLogger())

	res, err := svc.CheckBulk(context.Background(), &dto.CheckBulkReferenceRequest{References: []library.Reference{
		{SourceID: "c", DOI: "10.1234/c"},
		{SourceID: "b", DOI: "10.1234/b"},
		{SourceID: "a", DOI: "10.1234/a"},
		{SourceID: "b", DOI: "10.1234/b"},
	}})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	assert.Equal(t, "a", res.Results[0].SourceID)
	assert.Equal(t, "absent", res.Results[0].State)
	assert.Equal(t, "b", res.Results[1].SourceID)
	assert.Equal(t, "found", res.Results[1].State)
	assert.Equal(t, "BBBB2222", res.Results[1].Found.Key)
	assert.Equal(t, "c", res.Results[2].SourceID)
	assert.Equal(t, "unknown", res.Results[2].State)
	assert.Contains(t, res.Errors, "search unavailable")
}

func TestReferenceService_InvalidateAndReset(t *testing.T) {
	finder := doiFinder{byDOI: map[string]library.Coordinate{"10.1234/a": {LibraryID: 1, Key: "AAAA2222"}}}
	svc := NewReferenceService(refresolver.New(finder, nil), logger.NewNopLogger())
	ctx := context.Background()

	res, err := svc.Check(ctx, &dto.CheckReferenceRequest{Reference: library.Reference{SourceID: "a", DOI: "10.1234/a"}})
	require.NoError(t, err)
	assert.Equal(t, "found", res.State)
	assert.Equal(t, "found", svc.Status(ctx, "a").State)

	svc.Invalidate(ctx, "a")
	assert.Equal(t, "unknown", svc.Status(ctx, "a").State)

	_, err = svc.Check(ctx, &dto.CheckReferenceRequest{Reference: library.Reference{SourceID: "a", DOI: "10.1234/a"}})
	require.NoError(t, err)
	svc.Reset(ctx)
	assert.Equal(t, "unknown", svc.Status(ctx, "a").State)
}
