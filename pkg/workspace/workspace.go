// Package workspace bundles the per-thread state a conversation needs: the
// streamed thread, its proposed actions, citation markers and the
// reconciler that applies actions.
package workspace

import (
	"context"
	"time"

	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/citation"
	"ai-library-agent/pkg/library"
	"ai-library-agent/pkg/reconcile"
	"ai-library-agent/pkg/thread"
)

const metadataTimeout = 2 * time.Second

type Deps struct {
	Library  library.Store
	Resolver reconcile.Resolver
	Viewer   reconcile.Viewer
	Acker    reconcile.Acknowledger
	Logger   logger.ILogger
	Config   reconcile.Config
}

type Workspace struct {
	Key    string
	UserID string

	State      *thread.State
	Actions    *actions.Store
	Citations  *citation.Numberer
	Reconciler *reconcile.Reconciler
}

func New(key, userID string, deps Deps) *Workspace {
	store := actions.NewStore()
	w := &Workspace{
		Key:     key,
		UserID:  userID,
		State:   thread.NewState(),
		Actions: store,
	}
	w.Citations = citation.NewNumberer(metadataFrom(deps.Library))
	w.Reconciler = reconcile.New(reconcile.Deps{
		Store:    store,
		Library:  deps.Library,
		Resolver: deps.Resolver,
		Viewer:   deps.Viewer,
		Acker:    deps.Acker,
		Logger:   deps.Logger,
	}, deps.Config)
	return w
}

// CitationEntries numbers the thread's accumulated citations.
func (w *Workspace) CitationEntries() []citation.Entry {
	return w.Citations.Update(w.State.Citations())
}

// metadataFrom resolves in-library citations to their record title.
func metadataFrom(lib library.Finder) citation.MetadataResolver {
	return func(c citation.Citation) citation.Metadata {
		fallback := citation.Metadata{Title: c.Snippet}
		if fallback.Title == "" {
			fallback.Title = c.Key()
		}
		if lib == nil || c.LibraryID <= 0 || c.ItemKey == "" {
			return fallback
		}
		ctx, cancel := context.WithTimeout(context.Background(), metadataTimeout)
		defer cancel()
		rec, err := lib.GetRecord(ctx, library.Coordinate{LibraryID: c.LibraryID, Key: c.ItemKey})
		if err != nil || rec == nil || rec.Title == "" {
			return fallback
		}
		return citation.Metadata{Title: rec.Title, Resolved: true}
	}
}
