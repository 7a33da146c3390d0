package refresolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-library-agent/pkg/library"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	mu       sync.Mutex
	records  map[library.Coordinate]bool // value: soft deleted
	byDOI    map[string]library.Coordinate
	searches atomic.Int64
	finished atomic.Int64
	release  chan struct{}
	gates    map[string]chan struct{} // per-DOI holds, checked after release
	failNext error
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{
		records: make(map[library.Coordinate]bool),
		byDOI:   make(map[string]library.Coordinate),
	}
}

func (f *fakeFinder) GetRecord(_ context.Context, c library.Coordinate) (*library.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted, ok := f.records[c]
	if !ok {
		return nil, nil
	}
	return &library.Record{Coordinate: c, IsDeleted: deleted}, nil
}

func (f *fakeFinder) IsSoftDeleted(_ context.Context, c library.Coordinate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[c], nil
}

func (f *fakeFinder) Search(ctx context.Context, q library.SearchQuery) (*library.Coordinate, error) {
	f.searches.Add(1)
	defer f.finished.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if gate, ok := f.gates[q.DOI]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	if c, ok := f.byDOI[q.DOI]; ok {
		return &c, nil
	}
	return nil, nil
}

func ref(id, doi string) library.Reference {
	return library.Reference{SourceID: id, Title: "Title " + id, DOI: doi}
}

func TestCheck_SingleFlight(t *testing.T) {
	finder := newFakeFinder()
	finder.byDOI["10.1234/a"] = library.Coordinate{LibraryID: 1, Key: "AAAA1111"}
	finder.release = make(chan struct{})
	r := New(finder, nil)

	const callers = 5
	results := make([]*library.Coordinate, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.Check(context.Background(), ref("src-1", "10.1234/a"))
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}

	require.Eventually(t, func() bool { return finder.searches.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePending, r.Lookup("src-1").State)
	time.Sleep(20 * time.Millisecond)
	close(finder.release)
	wg.Wait()

	assert.Equal(t, int64(1), finder.searches.Load())
	for _, c := range results {
		require.NotNil(t, c)
		assert.Equal(t, "AAAA1111", c.Key)
	}
	assert.Equal(t, StateFound, r.Lookup("src-1").State)
}

func TestCheck_CachesConfirmedAbsent(t *testing.T) {
	finder := newFakeFinder()
	r := New(finder, nil)

	c, err := r.Check(context.Background(), ref("src-1", "10.1234/missing"))
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, StateAbsent, r.Lookup("src-1").State)

	c, err = r.Check(context.Background(), ref("src-1", "10.1234/missing"))
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, int64(1), finder.searches.Load())
	assert.Equal(t, int64(1), r.Stats().CacheHits)
}

func TestCheck_ErrorsAreNotCached(t *testing.T) {
	finder := newFakeFinder()
	finder.failNext = errors.New("db down")
	r := New(finder, nil)

	_, err := r.Check(context.Background(), ref("src-1", "10.1234/a"))
	require.Error(t, err)
	assert.Equal(t, StateUnknown, r.Lookup("src-1").State)

	_, err = r.Check(context.Background(), ref("src-1", "10.1234/a"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), finder.searches.Load())
}

func TestCheck_ValidatesCandidate(t *testing.T) {
	finder := newFakeFinder()
	live := library.Coordinate{LibraryID: 1, Key: "LIVE0001"}
	trashed := library.Coordinate{LibraryID: 1, Key: "TRASH001"}
	finder.records[live] = false
	finder.records[trashed] = true
	r := New(finder, nil)

	withLive := ref("src-live", "")
	withLive.Candidate = &live
	c, err := r.Check(context.Background(), withLive)
	require.NoError(t, err)
	assert.Equal(t, &live, c)
	assert.Equal(t, int64(0), finder.searches.Load())

	withTrashed := ref("src-trash", "")
	withTrashed.Candidate = &trashed
	c, err = r.Check(context.Background(), withTrashed)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, int64(1), finder.searches.Load(), "falls back to search")
}

func TestInvalidateAndMarkResolved(t *testing.T) {
	finder := newFakeFinder()
	r := New(finder, nil)

	_, err := r.Check(context.Background(), ref("src-1", ""))
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, r.Lookup("src-1").State)

	r.MarkResolved("src-1", library.Coordinate{LibraryID: 1, Key: "NEW00001"})
	got := r.Lookup("src-1")
	assert.Equal(t, StateFound, got.State)
	assert.Equal(t, "NEW00001", got.Coordinate.Key)

	r.Invalidate("src-1")
	assert.Equal(t, StateUnknown, r.Lookup("src-1").State)
}

func TestReset_DropsEverything(t *testing.T) {
	r := New(newFakeFinder(), nil)
	r.MarkResolved("a", library.Coordinate{LibraryID: 1, Key: "A"})
	r.MarkResolved("b", library.Coordinate{LibraryID: 1, Key: "B"})

	r.Reset()

	assert.Equal(t, StateUnknown, r.Lookup("a").State)
	assert.Equal(t, StateUnknown, r.Lookup("b").State)
}

func TestCheckBulk(t *testing.T) {
	finder := newFakeFinder()
	finder.byDOI["10.1234/b"] = library.Coordinate{LibraryID: 1, Key: "BBBB"}
	r := New(finder, nil)
	r.MarkResolved("a", library.Coordinate{LibraryID: 1, Key: "AAAA"})

	got, err := r.CheckBulk(context.Background(), []library.Reference{
		ref("a", "10.1234/a"),
		ref("b", "10.1234/b"),
		ref("c", "10.1234/c"),
		ref("b", "10.1234/b"),
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "AAAA", got["a"].Key)
	assert.Equal(t, "BBBB", got["b"].Key)
	assert.Nil(t, got["c"])
	assert.Equal(t, int64(2), finder.searches.Load())

	assert.Equal(t, StateFound, r.Lookup("b").State)
	assert.Equal(t, StateAbsent, r.Lookup("c").State)
}

func TestCheckBulk_PartialFailure(t *testing.T) {
	finder := newFakeFinder()
	finder.failNext = errors.New("timeout")
	r := New(finder, nil)

	got, err := r.CheckBulk(context.Background(), []library.Reference{ref("only", "10.1234/x")})
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Equal(t, StateUnknown, r.Lookup("only").State)
}

func TestCheck_JoinsRunningBulkResolution(t *testing.T) {
	finder := newFakeFinder()
	finder.byDOI["10.1234/fast"] = library.Coordinate{LibraryID: 1, Key: "FAST0001"}
	finder.byDOI["10.1234/slow"] = library.Coordinate{LibraryID: 1, Key: "SLOW0001"}
	slow := make(chan struct{})
	finder.gates = map[string]chan struct{}{"10.1234/slow": slow}
	r := New(finder, nil)

	bulkDone := make(chan struct{})
	go func() {
		defer close(bulkDone)
		got, err := r.CheckBulk(context.Background(), []library.Reference{
			ref("fast", "10.1234/fast"),
			ref("slow", "10.1234/slow"),
		})
		assert.NoError(t, err)
		assert.Len(t, got, 2)
	}()

	require.Eventually(t, func() bool { return finder.finished.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePending, r.Lookup("fast").State)

	var (
		checked *library.Coordinate
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := r.Check(context.Background(), ref("fast", "10.1234/fast"))
		assert.NoError(t, err)
		checked = c
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(2), finder.searches.Load())
	close(slow)
	wg.Wait()
	<-bulkDone

	assert.Equal(t, int64(2), finder.searches.Load())
	require.NotNil(t, checked)
	assert.Equal(t, "FAST0001", checked.Key)
	assert.Equal(t, StateFound, r.Lookup("fast").State)
	assert.Equal(t, StateFound, r.Lookup("slow").State)
}

func TestCheckBulk_ConcurrentBulksShareFlights(t *testing.T) {
	finder := newFakeFinder()
	finder.byDOI["10.1234/x"] = library.Coordinate{LibraryID: 1, Key: "XXXX0001"}
	finder.byDOI["10.1234/y"] = library.Coordinate{LibraryID: 1, Key: "YYYY0001"}
	finder.release = make(chan struct{})
	r := New(finder, nil)

	refs := []library.Reference{ref("x", "10.1234/x"), ref("y", "10.1234/y")}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.CheckBulk(context.Background(), refs)
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}()
	}

	require.Eventually(t, func() bool { return finder.searches.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(finder.release)
	wg.Wait()

	assert.Equal(t, int64(2), finder.searches.Load())
}

func TestReset_DoesNotJoinEarlierResolution(t *testing.T) {
	finder := newFakeFinder()
	finder.byDOI["10.1234/a"] = library.Coordinate{LibraryID: 1, Key: "AAAA1111"}
	finder.release = make(chan struct{})
	r := New(finder, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.Check(context.Background(), ref("src-1", "10.1234/a"))
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return finder.searches.Load() == 1 }, time.Second, 5*time.Millisecond)

	r.Reset()
	assert.Equal(t, StateUnknown, r.Lookup("src-1").State)

	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := r.Check(context.Background(), ref("src-1", "10.1234/a"))
		assert.NoError(t, err)
		assert.NotNil(t, c)
	}()
	require.Eventually(t, func() bool { return finder.searches.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePending, r.Lookup("src-1").State)

	close(finder.release)
	wg.Wait()
	assert.Equal(t, StateFound, r.Lookup("src-1").State)
}
