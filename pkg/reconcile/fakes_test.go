package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/library"
)

type fakeLibrary struct {
	mu         sync.Mutex
	records    map[library.Coordinate]*library.Record
	byTitle    map[string]library.Coordinate
	created    []library.Reference
	indexed    []library.Coordinate
	failTitles map[string]error
	block      chan struct{}
	next       int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		records:    make(map[library.Coordinate]*library.Record),
		byTitle:    make(map[string]library.Coordinate),
		failTitles: make(map[string]error),
	}
}

func (f *fakeLibrary) seed(title string) library.Coordinate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	c := library.Coordinate{LibraryID: 1, Key: fmt.Sprintf("SEED%04d", f.next)}
	f.records[c] = &library.Record{Coordinate: c, Title: title}
	f.byTitle[library.NormalizeTitle(title)] = c
	return c
}

func (f *fakeLibrary) remove(c library.Coordinate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, c)
}

func (f *fakeLibrary) GetRecord(_ context.Context, c library.Coordinate) (*library.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[c]
	if !ok {
		return nil, library.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeLibrary) IsSoftDeleted(_ context.Context, c library.Coordinate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[c]
	return ok && rec.IsDeleted, nil
}

func (f *fakeLibrary) Search(_ context.Context, q library.SearchQuery) (*library.Coordinate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byTitle[q.Title]
	if !ok {
		return nil, nil
	}
	if rec, live := f.records[c]; !live || rec.IsDeleted {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeLibrary) CreateRecord(ctx context.Context, ref library.Reference, _ []string) (library.Coordinate, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return library.Coordinate{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failTitles[ref.Title]; err != nil {
		return library.Coordinate{}, err
	}
	f.next++
	c := library.Coordinate{LibraryID: 1, Key: fmt.Sprintf("NEW%05d", f.next)}
	f.records[c] = &library.Record{Coordinate: c, Title: ref.Title, SourceID: ref.SourceID}
	f.byTitle[library.NormalizeTitle(ref.Title)] = c
	f.created = append(f.created, ref)
	return c, nil
}

func (f *fakeLibrary) DeleteRecord(_ context.Context, c library.Coordinate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[c]
	if !ok || rec.IsDeleted {
		return library.ErrNotFound
	}
	rec.IsDeleted = true
	return nil
}

func (f *fakeLibrary) IndexForSearch(_ context.Context, c library.Coordinate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, c)
	return nil
}

func (f *fakeLibrary) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeViewer struct {
	mu          sync.Mutex
	open        map[library.Coordinate]bool
	neverReady  bool
	opened      []library.Coordinate
	navigated   map[library.Coordinate][]int
	annotations map[library.Coordinate]bool
	failText    map[string]bool
	next        int
}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{
		open:        make(map[library.Coordinate]bool),
		navigated:   make(map[library.Coordinate][]int),
		annotations: make(map[library.Coordinate]bool),
		failText:    make(map[string]bool),
	}
}

func (v *fakeViewer) IsOpen(_ context.Context, doc library.Coordinate) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open[doc], nil
}

func (v *fakeViewer) Open(_ context.Context, doc library.Coordinate) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.open[doc] = true
	v.opened = append(v.opened, doc)
	return nil
}

func (v *fakeViewer) NavigateToPage(_ context.Context, doc library.Coordinate, page int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.navigated[doc] = append(v.navigated[doc], page)
	return nil
}

func (v *fakeViewer) IsReady(_ context.Context, doc library.Coordinate) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open[doc] && !v.neverReady, nil
}

func (v *fakeViewer) InsertAnnotation(_ context.Context, doc library.Coordinate, _ actions.ActionType, a actions.AnnotationProposal) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failText[a.Text] {
		return "", errors.New("viewer rejected annotation")
	}
	v.next++
	key := fmt.Sprintf("ANN%05d", v.next)
	v.annotations[library.Coordinate{LibraryID: doc.LibraryID, Key: key}] = true
	return key, nil
}

func (v *fakeViewer) DeleteAnnotation(_ context.Context, c library.Coordinate) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.annotations[c] {
		return library.ErrNotFound
	}
	delete(v.annotations, c)
	return nil
}

func (v *fakeViewer) AnnotationExists(_ context.Context, c library.Coordinate) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.annotations[c], nil
}

type fakeAcker struct {
	mu        sync.Mutex
	calls     [][]actions.Ack
	failTimes int
	reject    map[string]bool
}

func (a *fakeAcker) Acknowledge(_ context.Context, acks []actions.Ack) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, append([]actions.Ack(nil), acks...))
	if a.failTimes > 0 {
		a.failTimes--
		return nil, errors.New("origin unavailable")
	}
	var ids []string
	for _, ack := range acks {
		if !a.reject[ack.ActionID] {
			ids = append(ids, ack.ActionID)
		}
	}
	return ids, nil
}

func (a *fakeAcker) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func createAction(id, title string) *actions.ProposedAction {
	return &actions.ProposedAction{
		ID:         id,
		Type:       actions.TypeCreateItem,
		ToolCallID: "tc1",
		CreateItem: &actions.CreateItemProposal{
			Reference: library.Reference{SourceID: "src-" + id, Title: title},
		},
	}
}

func highlightAction(id string, doc library.Coordinate, page int, text string) *actions.ProposedAction {
	return &actions.ProposedAction{
		ID:         id,
		Type:       actions.TypeHighlightAnnotation,
		ToolCallID: "tc2",
		Annotation: &actions.AnnotationProposal{
			Attachment: doc,
			Text:       text,
			Position:   actions.Position{PageIndex: page},
		},
	}
}
