// Package refresolver answers "is this external reference already in the
// library?" with one cached, single-flight resolution per source id.
package refresolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/library"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const bulkConcurrency = 8

var ErrMissingSourceID = errors.New("reference has no source id")

type State int

const (
	StateUnknown State = iota // never checked
	StatePending              // resolution in flight
	StateAbsent               // checked, confirmed not in the library
	StateFound                // checked, present at Coordinate
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAbsent:
		return "absent"
	case StateFound:
		return "found"
	default:
		return "unknown"
	}
}

type Lookup struct {
	State      State
	Coordinate *library.Coordinate
}

type Stats struct {
	Resolutions int64 // underlying candidate validations + searches
	CacheHits   int64
}

type Resolver struct {
	finder library.Finder
	logger logger.ILogger

	// source id -> *library.Coordinate; a nil pointer means confirmed absent
	cache *cache.Cache
	group singleflight.Group

	mu       sync.Mutex
	checking map[string]uint64 // source id -> epoch of the resolution
	epoch    uint64

	resolutions atomic.Int64
	hits        atomic.Int64
}

func New(finder library.Finder, log logger.ILogger) *Resolver {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Resolver{
		finder:   finder,
		logger:   log,
		cache:    cache.New(cache.NoExpiration, 0),
		checking: make(map[string]uint64),
	}
}

// Lookup reports the current knowledge about a source id without blocking.
func (r *Resolver) Lookup(sourceID string) Lookup {
	if c, ok := r.cached(sourceID); ok {
		if c == nil {
			return Lookup{State: StateAbsent}
		}
		return Lookup{State: StateFound, Coordinate: c}
	}
	if r.isChecking(sourceID) {
		return Lookup{State: StatePending}
	}
	return Lookup{State: StateUnknown}
}

// Check returns the library coordinate of ref, or nil when it is confirmed
// absent. Concurrent checks of the same source id share one resolution.
func (r *Resolver) Check(ctx context.Context, ref library.Reference) (*library.Coordinate, error) {
	if ref.SourceID == "" {
		return nil, ErrMissingSourceID
	}
	if c, ok := r.cached(ref.SourceID); ok {
		r.hits.Add(1)
		return c, nil
	}

	ch := r.group.DoChan(ref.SourceID, r.singleFlight(ctx, ref, r.currentEpoch()))
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		c, _ := res.Val.(*library.Coordinate)
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) singleFlight(ctx context.Context, ref library.Reference, epoch uint64) func() (interface{}, error) {
	return func() (interface{}, error) {
		id := ref.SourceID
		if c, ok := r.cached(id); ok {
			return c, nil
		}

		r.setChecking(id, epoch)
		defer r.clearChecking(id, epoch)

		// Waiters share this resolution, so it must outlive the caller that started it.
		c, err := r.resolve(context.WithoutCancel(ctx), ref)
		if err != nil {
			r.logger.Warn("RefResolver", "Reference check failed", map[string]interface{}{
				"source_id": id,
				"error":     err.Error(),
			})
			return nil, err
		}
		r.commit(epoch, map[string]*library.Coordinate{id: c})
		return c, nil
	}
}

// CheckBulk resolves many references at once. Cached entries are answered
// directly, in-flight ones are awaited, and the rest are resolved
// concurrently and committed to the cache in one step. Each unresolved
// reference runs as its own flight that stays joinable until that commit, so
// a concurrent Check of the same source id waits instead of searching again.
// Per-reference failures are joined into the returned error; successful
// entries are still returned.
func (r *Resolver) CheckBulk(ctx context.Context, refs []library.Reference) (map[string]*library.Coordinate, error) {
	results := make(map[string]*library.Coordinate, len(refs))
	epoch := r.currentEpoch()

	var (
		inflight   = make(map[string]<-chan singleflight.Result)
		unresolved []library.Reference
		seen       = make(map[string]bool)
		errs       []error
	)

	for _, ref := range refs {
		id := ref.SourceID
		if id == "" {
			errs = append(errs, ErrMissingSourceID)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		if c, ok := r.cached(id); ok {
			r.hits.Add(1)
			results[id] = c
			continue
		}
		if !r.claimChecking(id, epoch) {
			inflight[id] = r.group.DoChan(id, r.singleFlight(ctx, ref, epoch))
			continue
		}
		unresolved = append(unresolved, ref)
	}

	defer func() {
		for _, ref := range unresolved {
			r.clearChecking(ref.SourceID, epoch)
		}
	}()

	var (
		mu        sync.Mutex
		resolved  = make(map[string]*library.Coordinate, len(unresolved))
		committed = make(chan struct{})
		sem       = make(chan struct{}, bulkConcurrency)
		flights   = make(map[string]<-chan singleflight.Result, len(unresolved))
		staged    = make(map[string]chan struct{}, len(unresolved))
		settled   = make(map[string]singleflight.Result)
	)
	var commitOnce sync.Once
	commit := func() {
		commitOnce.Do(func() {
			r.commit(epoch, resolved)
			close(committed)
		})
	}
	defer commit()

	for _, ref := range unresolved {
		id := ref.SourceID
		ready := make(chan struct{})
		staged[id] = ready
		flights[id] = r.group.DoChan(id, func() (interface{}, error) {
			sem <- struct{}{}
			c, err := r.resolve(context.WithoutCancel(ctx), ref)
			<-sem
			if err != nil {
				return nil, err
			}
			mu.Lock()
			resolved[id] = c
			mu.Unlock()
			close(ready)
			<-committed
			return c, nil
		})
	}

	// A flight is settled once its result is staged for the commit, or once it
	// finished on its own (an error, or a flight started elsewhere that this
	// call joined).
	for _, ref := range unresolved {
		id := ref.SourceID
		select {
		case <-staged[id]:
		case res := <-flights[id]:
			settled[id] = res
		}
	}

	mu.Lock()
	commit()
	mu.Unlock()

	for _, ref := range unresolved {
		id := ref.SourceID
		res, ok := settled[id]
		if !ok {
			res = <-flights[id]
		}
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, res.Err))
			continue
		}
		c, _ := res.Val.(*library.Coordinate)
		results[id] = c
	}

	for id, ch := range inflight {
		select {
		case res := <-ch:
			if res.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, res.Err))
				continue
			}
			c, _ := res.Val.(*library.Coordinate)
			results[id] = c
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("%s: %w", id, ctx.Err()))
		}
	}

	return results, errors.Join(errs...)
}

// Invalidate forgets what is known about one source id so the next check
// searches again.
func (r *Resolver) Invalidate(sourceID string) {
	r.cache.Delete(sourceID)
	r.group.Forget(sourceID)
}

// MarkResolved records a known coordinate, typically right after the record
// was created.
func (r *Resolver) MarkResolved(sourceID string, c library.Coordinate) {
	if sourceID == "" {
		return
	}
	r.cache.Set(sourceID, &c, cache.NoExpiration)
}

// Reset drops every cached entry. Resolutions started before the reset
// finish but are not committed, and later checks do not join them.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.epoch++
	r.cache.Flush()
	for id := range r.checking {
		r.group.Forget(id)
	}
	r.checking = make(map[string]uint64)
	r.mu.Unlock()
	r.logger.Info("RefResolver", "Reference cache reset", nil)
}

func (r *Resolver) Stats() Stats {
	return Stats{Resolutions: r.resolutions.Load(), CacheHits: r.hits.Load()}
}

func (r *Resolver) resolve(ctx context.Context, ref library.Reference) (*library.Coordinate, error) {
	r.resolutions.Add(1)

	if ref.Candidate != nil && !ref.Candidate.IsZero() {
		c, err := r.validateCandidate(ctx, *ref.Candidate)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return c, nil
		}
	}

	q := library.BuildQuery(ref)
	if q.IsEmpty() {
		return nil, nil
	}
	c, err := r.finder.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search library: %w", err)
	}
	return c, nil
}

func (r *Resolver) validateCandidate(ctx context.Context, c library.Coordinate) (*library.Coordinate, error) {
	rec, err := r.finder.GetRecord(ctx, c)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("validate candidate %s: %w", c, err)
	}
	if rec == nil {
		return nil, nil
	}
	deleted, err := r.finder.IsSoftDeleted(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("validate candidate %s: %w", c, err)
	}
	if deleted {
		return nil, nil
	}
	return &c, nil
}

func (r *Resolver) commit(epoch uint64, entries map[string]*library.Coordinate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch {
		return
	}
	for id, c := range entries {
		r.cache.Set(id, c, cache.NoExpiration)
	}
}

func (r *Resolver) cached(sourceID string) (*library.Coordinate, bool) {
	x, found := r.cache.Get(sourceID)
	if !found {
		return nil, false
	}
	c, _ := x.(*library.Coordinate)
	return c, true
}

func (r *Resolver) currentEpoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

func (r *Resolver) setChecking(id string, epoch uint64) {
	r.mu.Lock()
	if epoch == r.epoch {
		r.checking[id] = epoch
	}
	r.mu.Unlock()
}

// claimChecking marks id as checked by the caller unless another resolution
// already holds it. Two bulk checks never own the same id, so neither waits
// on a flight that is itself waiting for the other's commit.
func (r *Resolver) claimChecking(id string, epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checking[id]; ok {
		return false
	}
	if epoch == r.epoch {
		r.checking[id] = epoch
	}
	return true
}

// clearChecking leaves markers set by resolutions started after a reset.
func (r *Resolver) clearChecking(id string, epoch uint64) {
	r.mu.Lock()
	if e, ok := r.checking[id]; ok && e == epoch {
		delete(r.checking, id)
	}
	r.mu.Unlock()
}

func (r *Resolver) isChecking(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.checking[id]
	return ok
}
