package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ai-library-agent/pkg/actions"

	"github.com/cenkalti/backoff/v5"
)

var (
	ErrNoAcknowledger = errors.New("no acknowledger configured")
	ErrAckIncomplete  = errors.New("acknowledgment incomplete")
)

// AckBatch acknowledges applied results. Each action is tracked on its own:
// ids the service confirms are settled, the rest stay queued for RetryAcks.
// Returns the ids confirmed by this call.
func (r *Reconciler) AckBatch(ctx context.Context, acks []actions.Ack) ([]string, error) {
	if len(acks) == 0 {
		return nil, nil
	}
	r.queueAcks(acks)
	if r.acker == nil {
		return nil, ErrNoAcknowledger
	}

	var confirmed []string
	op := func() (struct{}, error) {
		pending := r.stillUnacked(acks)
		if len(pending) == 0 {
			return struct{}{}, nil
		}
		ids, err := r.acker.Acknowledge(ctx, pending)
		r.settleAcks(ids)
		confirmed = append(confirmed, ids...)
		if err != nil {
			return struct{}{}, err
		}
		if rest := r.stillUnacked(acks); len(rest) > 0 {
			return struct{}{}, fmt.Errorf("%w: %d of %d unconfirmed", ErrAckIncomplete, len(rest), len(pending))
		}
		return struct{}{}, nil
	}

	var err error
	if r.cfg.AckAutoRetry {
		b := backoff.NewExponentialBackOff()
		if r.cfg.AckRetryInterval > 0 {
			b.InitialInterval = r.cfg.AckRetryInterval
		}
		_, err = backoff.Retry(ctx, op,
			backoff.WithBackOff(b),
			backoff.WithMaxTries(r.cfg.AckMaxTries),
			backoff.WithMaxElapsedTime(time.Minute),
		)
	} else {
		_, err = op()
	}

	if err != nil {
		r.logger.Warn("Reconciler", "Acknowledgment failed", map[string]interface{}{
			"requested": len(acks),
			"confirmed": len(confirmed),
			"error":     err.Error(),
		})
		return confirmed, err
	}
	r.logger.Debug("Reconciler", "Acknowledged actions", map[string]interface{}{
		"ids": confirmed,
	})
	return confirmed, nil
}

// RetryAcks resends every queued acknowledgment of a still-applied action.
func (r *Reconciler) RetryAcks(ctx context.Context) ([]string, error) {
	return r.AckBatch(ctx, r.PendingAcks())
}

// PendingAcks lists applied actions whose acknowledgment has not been
// confirmed, ordered by action id.
func (r *Reconciler) PendingAcks() []actions.Ack {
	r.mu.Lock()
	queued := make([]actions.Ack, 0, len(r.unacked))
	for _, ack := range r.unacked {
		queued = append(queued, ack)
	}
	r.mu.Unlock()

	out := queued[:0]
	for _, ack := range queued {
		if a, ok := r.store.Get(ack.ActionID); ok && a.Status == actions.StatusApplied {
			out = append(out, ack)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out
}

func (r *Reconciler) queueAcks(acks []actions.Ack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ack := range acks {
		r.unacked[ack.ActionID] = ack
	}
}

func (r *Reconciler) settleAcks(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.unacked, id)
	}
}

func (r *Reconciler) stillUnacked(acks []actions.Ack) []actions.Ack {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []actions.Ack
	for _, ack := range acks {
		if _, ok := r.unacked[ack.ActionID]; ok {
			out = append(out, ack)
		}
	}
	return out
}
