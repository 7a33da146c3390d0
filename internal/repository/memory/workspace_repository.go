package memory

import (
	"sync"
	"time"

	"ai-library-agent/pkg/workspace"

	"github.com/patrickmn/go-cache"
)

// WorkspaceRepository keeps thread workspaces in memory. An entry expires
// after idleTTL without access.
type WorkspaceRepository struct {
	cache   *cache.Cache
	idleTTL time.Duration

	// serializes GetOrCreate so one key never builds two workspaces
	mu sync.Mutex
}

func NewWorkspaceRepository(idleTTL time.Duration) *WorkspaceRepository {
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	return &WorkspaceRepository{
		cache:   cache.New(idleTTL, 10*time.Minute),
		idleTTL: idleTTL,
	}
}

// OnEvicted registers a callback for expired or deleted workspaces.
func (r *WorkspaceRepository) OnEvicted(fn func(key string, w *workspace.Workspace)) {
	r.cache.OnEvicted(func(key string, v interface{}) {
		if w, ok := v.(*workspace.Workspace); ok {
			fn(key, w)
		}
	})
}

func (r *WorkspaceRepository) Save(w *workspace.Workspace) {
	r.cache.Set(w.Key, w, cache.DefaultExpiration)
}

// Get returns the workspace and refreshes its idle expiry.
func (r *WorkspaceRepository) Get(key string) (*workspace.Workspace, bool) {
	x, found := r.cache.Get(key)
	if !found {
		return nil, false
	}
	w := x.(*workspace.Workspace)
	r.cache.Set(key, w, cache.DefaultExpiration)
	return w, true
}

// GetOrCreate returns the workspace stored under key, building it with
// create when absent.
func (r *WorkspaceRepository) GetOrCreate(key string, create func() *workspace.Workspace) *workspace.Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.Get(key); ok {
		return w
	}
	w := create()
	r.Save(w)
	return w
}

func (r *WorkspaceRepository) Delete(key string) {
	r.cache.Delete(key)
}

func (r *WorkspaceRepository) Count() int {
	return r.cache.ItemCount()
}
