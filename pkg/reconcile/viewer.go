package reconcile

import (
	"context"
	"fmt"
	"time"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/library"
)

// Viewer is the host document viewer. Attachments are addressed by their
// library coordinate, annotations by the coordinate returned on insert.
// DeleteAnnotation returns library.ErrNotFound for a missing annotation.
type Viewer interface {
	IsOpen(ctx context.Context, attachment library.Coordinate) (bool, error)
	Open(ctx context.Context, attachment library.Coordinate) error
	NavigateToPage(ctx context.Context, attachment library.Coordinate, pageIndex int) error
	IsReady(ctx context.Context, attachment library.Coordinate) (bool, error)
	InsertAnnotation(ctx context.Context, attachment library.Coordinate, kind actions.ActionType, a actions.AnnotationProposal) (string, error)
	DeleteAnnotation(ctx context.Context, annotation library.Coordinate) error
	AnnotationExists(ctx context.Context, annotation library.Coordinate) (bool, error)
}

type outcome struct {
	id     string
	result *actions.ResultData
	err    error
}

// applyAnnotationGroup inserts annotations that target one document. The
// document is prepared once for the whole group; a preparation failure fails
// every member, an insertion failure only its own.
func (r *Reconciler) applyAnnotationGroup(ctx context.Context, attachment library.Coordinate, group []*actions.ProposedAction) []outcome {
	out := make([]outcome, len(group))
	for i, a := range group {
		out[i].id = a.ID
	}
	if r.viewer == nil {
		for i := range out {
			out[i].err = fmt.Errorf("no document viewer connected")
		}
		return out
	}

	if err := r.prepareDocument(ctx, attachment, earliestPage(group)); err != nil {
		for i := range out {
			out[i].err = err
		}
		return out
	}

	for i, a := range group {
		key, err := r.viewer.InsertAnnotation(ctx, attachment, a.Type, *a.Annotation)
		if err != nil {
			out[i].err = fmt.Errorf("insert annotation: %w", err)
			continue
		}
		doc := attachment
		out[i].result = &actions.ResultData{
			LibraryID:  attachment.LibraryID,
			Key:        key,
			Attachment: &doc,
		}
	}
	return out
}

func earliestPage(group []*actions.ProposedAction) int {
	page := -1
	for _, a := range group {
		p := a.Annotation.Position.PageIndex
		if page < 0 || p < page {
			page = p
		}
	}
	if page < 0 {
		return 0
	}
	return page
}

// prepareDocument opens the attachment when needed, moves to page and waits
// for readiness.
func (r *Reconciler) prepareDocument(ctx context.Context, attachment library.Coordinate, page int) error {
	open, err := r.viewer.IsOpen(ctx, attachment)
	if err != nil {
		return fmt.Errorf("query viewer: %w", err)
	}
	if !open {
		if err := r.viewer.Open(ctx, attachment); err != nil {
			return fmt.Errorf("open document %s: %w", attachment, err)
		}
		if err := r.viewer.NavigateToPage(ctx, attachment, page); err != nil {
			return fmt.Errorf("navigate to page %d: %w", page, err)
		}
	}

	if ready, err := r.waitReady(ctx, attachment); err != nil {
		return err
	} else if !ready {
		r.logger.Warn("Reconciler", "Viewer not ready before timeout, proceeding", map[string]interface{}{
			"attachment": attachment.String(),
			"timeout":    r.cfg.ReadyTimeout.String(),
		})
	}
	return nil
}

// waitReady polls the viewer until it reports ready or ReadyTimeout elapses.
// Only context cancellation is an error; a timeout returns false.
func (r *Reconciler) waitReady(ctx context.Context, attachment library.Coordinate) (bool, error) {
	timeout := time.NewTimer(r.cfg.ReadyTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(r.cfg.ReadyPollInterval)
	defer ticker.Stop()

	for {
		ready, err := r.viewer.IsReady(ctx, attachment)
		if err == nil && ready {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timeout.C:
			return false, nil
		case <-ticker.C:
		}
	}
}
