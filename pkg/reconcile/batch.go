package reconcile

import (
	"context"
	"fmt"
	"sync"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/library"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const maxParallelApply = 8

// BatchResult reports the outcome of ApplyAll per action id.
type BatchResult struct {
	Applied  map[string]*actions.ResultData `json:"applied"`
	Failed   map[string]string              `json:"failed"`
	Skipped  map[string]string              `json:"skipped"`
	Acked    []string                       `json:"acked"`
	AckError string                         `json:"ack_error,omitempty"`
}

// ApplyAll applies the listed actions, or every pending action when ids is
// empty, concurrently. Annotations on the same document share one document
// preparation. Failures are recorded per action and never roll back
// siblings; successes are acknowledged in a single batch.
func (r *Reconciler) ApplyAll(ctx context.Context, ids []string) BatchResult {
	ctx, span := r.tracer.Start(ctx, "reconcile.ApplyAll")
	defer span.End()

	res := BatchResult{
		Applied: make(map[string]*actions.ResultData),
		Failed:  make(map[string]string),
		Skipped: make(map[string]string),
	}

	candidates := r.candidates(ids, res.Skipped)

	var eligible []*actions.ProposedAction
	for _, a := range candidates {
		if !r.acquire(a.ID) {
			res.Skipped[a.ID] = fmt.Errorf("%w: %s", ErrBusy, a.ID).Error()
			continue
		}
		defer r.release(a.ID)
		eligible = append(eligible, a)
	}
	span.SetAttributes(attribute.Int("actions.eligible", len(eligible)))

	var creates []*actions.ProposedAction
	groups := make(map[library.Coordinate][]*actions.ProposedAction)
	var groupOrder []library.Coordinate
	for _, a := range eligible {
		switch {
		case a.Type.IsAnnotation() && a.Annotation != nil:
			doc := a.Annotation.Attachment
			if _, ok := groups[doc]; !ok {
				groupOrder = append(groupOrder, doc)
			}
			groups[doc] = append(groups[doc], a)
		default:
			creates = append(creates, a)
		}
	}

	var (
		mu   sync.Mutex
		acks []actions.Ack
	)
	settle := func(a *actions.ProposedAction, result *actions.ResultData, err error) {
		if err == nil {
			err = r.commitApplied(a, result)
		}
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failed[a.ID] = err.Error()
			return
		}
		res.Applied[a.ID] = result
		acks = append(acks, actions.Ack{ActionID: a.ID, ResultData: *result})
	}

	var g errgroup.Group
	g.SetLimit(maxParallelApply)
	for _, a := range creates {
		g.Go(func() error {
			result, err := r.applyCreateItem(ctx, a)
			if err != nil {
				r.fail(a.ID, err)
			}
			settle(a, result, err)
			return nil
		})
	}
	for _, doc := range groupOrder {
		group := groups[doc]
		g.Go(func() error {
			_, gspan := r.tracer.Start(ctx, "reconcile.ApplyAnnotationGroup",
				trace.WithAttributes(attribute.String("attachment", doc.String()), attribute.Int("annotations", len(group))))
			defer gspan.End()

			for i, o := range r.applyAnnotationGroup(ctx, doc, group) {
				if o.err != nil {
					r.fail(o.id, o.err)
				}
				settle(group[i], o.result, o.err)
			}
			return nil
		})
	}
	_ = g.Wait()

	applied := make([]string, 0, len(res.Applied))
	for id := range res.Applied {
		applied = append(applied, id)
	}
	r.changed(applied...)

	acked, err := r.AckBatch(ctx, acks)
	res.Acked = acked
	if err != nil {
		res.AckError = err.Error()
	}

	r.logger.Info("Reconciler", "Batch apply finished", map[string]interface{}{
		"applied": len(res.Applied),
		"failed":  len(res.Failed),
		"skipped": len(res.Skipped),
		"acked":   len(res.Acked),
	})
	return res
}

// candidates resolves the requested ids to applicable actions. Ids that are
// unknown or not applicable are recorded in skipped.
func (r *Reconciler) candidates(ids []string, skipped map[string]string) []*actions.ProposedAction {
	if len(ids) == 0 {
		return r.store.ByStatus(actions.StatusPending)
	}
	var out []*actions.ProposedAction
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		a, err := r.lookup(id)
		if err != nil {
			skipped[id] = err.Error()
			continue
		}
		if !a.Status.CanApply() {
			skipped[id] = fmt.Errorf("%w: status %s", actions.ErrInvalidTransition, a.Status).Error()
			continue
		}
		out = append(out, a)
	}
	return out
}
