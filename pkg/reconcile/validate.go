package reconcile

import (
	"context"
	"errors"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/library"
)

// ValidationReport lists applied actions whose backing object disappeared
// outside this process and were therefore moved to undone.
type ValidationReport struct {
	Checked []string `json:"checked"`
	Undone  []string `json:"undone"`
	Skipped []string `json:"skipped"`
}

// Validate reconciles applied actions with the library and the viewer.
// Annotations inside their grace window and busy actions are skipped.
func (r *Reconciler) Validate(ctx context.Context) (ValidationReport, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.Validate")
	defer span.End()

	var (
		report ValidationReport
		errs   []error
	)
	for _, a := range r.store.ByStatus(actions.StatusApplied) {
		if a.ResultData == nil {
			continue
		}
		if a.Type.IsAnnotation() && r.InGraceWindow(a.ID) {
			report.Skipped = append(report.Skipped, a.ID)
			continue
		}
		if !r.acquire(a.ID) {
			report.Skipped = append(report.Skipped, a.ID)
			continue
		}

		gone, err := r.missing(ctx, a)
		if err == nil && gone {
			err = r.store.UpdateStatus([]string{a.ID}, actions.StatusUndone, actions.Update{})
			if err == nil {
				if !a.Type.IsAnnotation() && r.resolver != nil && a.CreateItem != nil {
					r.resolver.Invalidate(a.CreateItem.Reference.SourceID)
				}
				r.forget(a.ID)
				report.Undone = append(report.Undone, a.ID)
			}
		}
		r.release(a.ID)

		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Checked = append(report.Checked, a.ID)
	}

	r.changed(report.Undone...)
	if len(report.Undone) > 0 {
		r.logger.Info("Reconciler", "Externally removed actions marked undone", map[string]interface{}{
			"ids": report.Undone,
		})
	}
	return report, errors.Join(errs...)
}

func (r *Reconciler) missing(ctx context.Context, a *actions.ProposedAction) (bool, error) {
	target := a.ResultData.Coordinate()
	if a.Type.IsAnnotation() {
		if r.viewer == nil {
			return false, nil
		}
		exists, err := r.viewer.AnnotationExists(ctx, target)
		if err != nil {
			return false, err
		}
		return !exists, nil
	}

	rec, err := r.library.GetRecord(ctx, target)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	if rec == nil {
		return true, nil
	}
	deleted, err := r.library.IsSoftDeleted(ctx, target)
	if err != nil {
		return false, err
	}
	return deleted, nil
}
