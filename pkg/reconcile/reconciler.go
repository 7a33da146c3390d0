// Package reconcile applies, rejects and undoes proposed actions against the
// library and the document viewer, and acknowledges applied results to the
// origin service.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/library"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrBusy = errors.New("action is busy")

// Acknowledger confirms applied actions to the origin service. It returns
// the ids the service accepted; ids missing from the result were not
// persisted and stay pending acknowledgment.
type Acknowledger interface {
	Acknowledge(ctx context.Context, acks []actions.Ack) ([]string, error)
}

// Resolver is the existence check consulted before creating a record.
type Resolver interface {
	Check(ctx context.Context, ref library.Reference) (*library.Coordinate, error)
	MarkResolved(sourceID string, c library.Coordinate)
	Invalidate(sourceID string)
}

type Config struct {
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	GraceWindow       time.Duration

	// AckAutoRetry retries failed acknowledgments with exponential backoff
	// up to AckMaxTries attempts. When false, failures wait for RetryAcks.
	AckAutoRetry     bool
	AckMaxTries      uint
	AckRetryInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReadyTimeout:      10 * time.Second,
		ReadyPollInterval: 250 * time.Millisecond,
		GraceWindow:       3 * time.Second,
		AckMaxTries:       3,
	}
}

type Deps struct {
	Store    *actions.Store
	Library  library.Store
	Resolver Resolver
	Viewer   Viewer
	Acker    Acknowledger
	Logger   logger.ILogger
}

type Reconciler struct {
	store    *actions.Store
	library  library.Store
	resolver Resolver
	viewer   Viewer
	acker    Acknowledger
	cfg      Config
	logger   logger.ILogger
	tracer   trace.Tracer

	mu        sync.Mutex
	busy      map[string]struct{}
	appliedAt map[string]time.Time
	unacked   map[string]actions.Ack

	onChange func(ids []string)
	now      func() time.Time
}

func New(deps Deps, cfg Config) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	def := DefaultConfig()
	if cfg.ReadyPollInterval <= 0 {
		cfg.ReadyPollInterval = def.ReadyPollInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}
	if cfg.AckMaxTries == 0 {
		cfg.AckMaxTries = def.AckMaxTries
	}
	return &Reconciler{
		store:     deps.Store,
		library:   deps.Library,
		resolver:  deps.Resolver,
		viewer:    deps.Viewer,
		acker:     deps.Acker,
		cfg:       cfg,
		logger:    deps.Logger,
		tracer:    otel.Tracer("ai-library-agent/reconcile"),
		busy:      make(map[string]struct{}),
		appliedAt: make(map[string]time.Time),
		unacked:   make(map[string]actions.Ack),
		now:       time.Now,
	}
}

// OnChange registers a callback invoked with the ids whose status changed.
func (r *Reconciler) OnChange(fn func(ids []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Reconciler) changed(ids ...string) {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil && len(ids) > 0 {
		fn(ids)
	}
}

func (r *Reconciler) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.busy[id]; ok {
		return false
	}
	r.busy[id] = struct{}{}
	return true
}

func (r *Reconciler) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.busy, id)
}

// IsBusy reports whether an operation is running on the action.
func (r *Reconciler) IsBusy(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.busy[id]
	return ok
}

func (r *Reconciler) lookup(id string) (*actions.ProposedAction, error) {
	a, ok := r.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", actions.ErrNotFound, id)
	}
	return a, nil
}

// Apply executes one action and acknowledges its result. A failed
// acknowledgment leaves the action applied and queued for RetryAcks.
func (r *Reconciler) Apply(ctx context.Context, id string) (*actions.ResultData, error) {
	if !r.acquire(id) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}
	defer r.release(id)

	ctx, span := r.tracer.Start(ctx, "reconcile.Apply", trace.WithAttributes(attribute.String("action.id", id)))
	defer span.End()

	a, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanApply() {
		return nil, fmt.Errorf("%w: cannot apply %s action %s", actions.ErrInvalidTransition, a.Status, id)
	}
	span.SetAttributes(attribute.String("action.type", string(a.Type)))

	var result *actions.ResultData
	switch {
	case a.Type.IsAnnotation() && a.Annotation == nil:
		err = fmt.Errorf("%w: %s has no annotation payload", actions.ErrInvalidProposal, id)
	case a.Type.IsAnnotation():
		outcomes := r.applyAnnotationGroup(ctx, a.Annotation.Attachment, []*actions.ProposedAction{a})
		result, err = outcomes[0].result, outcomes[0].err
	default:
		result, err = r.applyCreateItem(ctx, a)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.fail(id, err)
		return nil, err
	}

	if err := r.commitApplied(a, result); err != nil {
		return nil, err
	}
	r.changed(id)

	if _, err := r.AckBatch(ctx, []actions.Ack{{ActionID: id, ResultData: *result}}); err != nil {
		r.logger.Warn("Reconciler", "Acknowledgment pending after apply", map[string]interface{}{
			"action_id": id,
			"error":     err.Error(),
		})
	}
	return result, nil
}

func (r *Reconciler) commitApplied(a *actions.ProposedAction, result *actions.ResultData) error {
	if err := r.store.UpdateStatus([]string{a.ID}, actions.StatusApplied, actions.Update{Result: result}); err != nil {
		return err
	}
	if a.Type.IsAnnotation() {
		r.mu.Lock()
		r.appliedAt[a.ID] = r.now()
		r.mu.Unlock()
	}
	return nil
}

func (r *Reconciler) fail(id string, cause error) {
	if err := r.store.UpdateStatus([]string{id}, actions.StatusError, actions.Update{ErrorMessage: cause.Error()}); err != nil {
		r.logger.Error("Reconciler", "Failed to record action error", map[string]interface{}{
			"action_id": id,
			"error":     err.Error(),
		})
		return
	}
	r.logger.Warn("Reconciler", "Action failed", map[string]interface{}{
		"action_id": id,
		"error":     cause.Error(),
	})
	r.changed(id)
}

// applyCreateItem reuses an equivalent existing record when the resolver
// finds one, otherwise creates the record and indexes it for search.
func (r *Reconciler) applyCreateItem(ctx context.Context, a *actions.ProposedAction) (*actions.ResultData, error) {
	if a.CreateItem == nil {
		return nil, fmt.Errorf("%w: %s has no item payload", actions.ErrInvalidProposal, a.ID)
	}
	ref := a.CreateItem.Reference

	if r.resolver != nil && ref.SourceID != "" {
		existing, err := r.resolver.Check(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("check existing record: %w", err)
		}
		if existing != nil {
			r.logger.Info("Reconciler", "Reference already in library", map[string]interface{}{
				"action_id": a.ID,
				"source_id": ref.SourceID,
				"key":       existing.Key,
			})
			return &actions.ResultData{LibraryID: existing.LibraryID, Key: existing.Key, Existing: true}, nil
		}
	}

	coord, err := r.library.CreateRecord(ctx, ref, a.CreateItem.CollectionKeys)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	if r.resolver != nil {
		r.resolver.MarkResolved(ref.SourceID, coord)
	}
	if err := r.library.IndexForSearch(ctx, coord); err != nil {
		r.logger.Warn("Reconciler", "Search indexing failed", map[string]interface{}{
			"action_id": a.ID,
			"key":       coord.Key,
			"error":     err.Error(),
		})
	}
	return &actions.ResultData{LibraryID: coord.LibraryID, Key: coord.Key}, nil
}

// Reject is allowed from pending or error and makes no external call.
func (r *Reconciler) Reject(ctx context.Context, id string) error {
	if !r.acquire(id) {
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	defer r.release(id)

	a, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !a.Status.CanReject() {
		return fmt.Errorf("%w: cannot reject %s action %s", actions.ErrInvalidTransition, a.Status, id)
	}
	if err := r.store.UpdateStatus([]string{id}, actions.StatusRejected, actions.Update{}); err != nil {
		return err
	}
	r.changed(id)
	return nil
}

// Undo reverses an applied action. A backing object that no longer exists
// counts as already undone. Records that were matched rather than created
// are left in place.
func (r *Reconciler) Undo(ctx context.Context, id string) error {
	if !r.acquire(id) {
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	defer r.release(id)

	ctx, span := r.tracer.Start(ctx, "reconcile.Undo", trace.WithAttributes(attribute.String("action.id", id)))
	defer span.End()

	a, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !a.Status.CanUndo() || a.ResultData == nil {
		return fmt.Errorf("%w: cannot undo %s action %s", actions.ErrInvalidTransition, a.Status, id)
	}

	if err := r.reverse(ctx, a); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.fail(id, err)
		return err
	}

	if err := r.store.UpdateStatus([]string{id}, actions.StatusUndone, actions.Update{}); err != nil {
		return err
	}
	r.forget(id)
	r.changed(id)
	return nil
}

func (r *Reconciler) reverse(ctx context.Context, a *actions.ProposedAction) error {
	target := a.ResultData.Coordinate()

	var err error
	switch {
	case a.Type.IsAnnotation():
		err = r.viewer.DeleteAnnotation(ctx, target)
	case a.ResultData.Existing:
		return nil
	default:
		err = r.library.DeleteRecord(ctx, target)
		if r.resolver != nil && a.CreateItem != nil {
			r.resolver.Invalidate(a.CreateItem.Reference.SourceID)
		}
	}

	if errors.Is(err, library.ErrNotFound) {
		r.logger.Info("Reconciler", "Undo target already gone", map[string]interface{}{
			"action_id": a.ID,
			"key":       target.Key,
		})
		return nil
	}
	return err
}

func (r *Reconciler) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.appliedAt, id)
	delete(r.unacked, id)
}

// MarkError moves each listed action to error. Ids that cannot move, busy
// ones included, are reported in the joined error without blocking the others.
func (r *Reconciler) MarkError(ids []string, message string) error {
	var errs []error
	var moved []string
	for _, id := range ids {
		if !r.acquire(id) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrBusy, id))
			continue
		}
		err := r.store.UpdateStatus([]string{id}, actions.StatusError, actions.Update{ErrorMessage: message})
		r.release(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.forget(id)
		moved = append(moved, id)
	}
	r.changed(moved...)
	return errors.Join(errs...)
}

// InGraceWindow reports whether an annotation was applied locally so
// recently that external change notifications should be ignored.
func (r *Reconciler) InGraceWindow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.appliedAt[id]
	return ok && r.now().Sub(at) < r.cfg.GraceWindow
}
