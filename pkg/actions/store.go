package actions

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound          = errors.New("action not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Update carries the payload that accompanies a status change. Result is only
// honoured when moving to applied and ErrorMessage only when moving to error.
type Update struct {
	Result       *ResultData
	ErrorMessage string
}

// Store is the in-memory, id-indexed set of proposed actions of one thread.
// Entries are never removed, only transitioned.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*ProposedAction
	order []string
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		byID: make(map[string]*ProposedAction),
		now:  time.Now,
	}
}

// Add inserts actions whose id is not yet known. Redelivered ids are ignored
// and keep their first-seen data. Returns the number of inserted actions.
func (s *Store) Add(actions ...*ProposedAction) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, a := range actions {
		if a == nil || a.ID == "" {
			continue
		}
		if _, exists := s.byID[a.ID]; exists {
			continue
		}
		c := a.clone()
		if c.Status == "" {
			c.Status = StatusPending
		}
		if c.Status != StatusApplied {
			c.ResultData = nil
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
			c.UpdatedAt = c.CreatedAt
		}
		s.byID[c.ID] = c
		s.order = append(s.order, c.ID)
		added++
	}
	return added
}

// UpdateStatus transitions every listed action to status. The whole call is
// validated first so either all listed actions move or none do.
func (s *Store) UpdateStatus(ids []string, status Status, u Update) error {
	if status == StatusApplied && u.Result == nil && len(ids) > 0 {
		return fmt.Errorf("%w: applied requires result data", ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		a, ok := s.byID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if !CanTransition(a.Status, status) {
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, a.Status, status)
		}
	}

	now := s.now()
	for _, id := range ids {
		a := s.byID[id]
		a.Status = status
		a.UpdatedAt = now
		a.ResultData = nil
		a.ErrorMessage = ""
		switch status {
		case StatusApplied:
			r := *u.Result
			a.ResultData = &r
		case StatusError:
			a.ErrorMessage = u.ErrorMessage
		}
	}
	return nil
}

func (s *Store) Get(id string) (*ProposedAction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

// ByToolCall returns the actions created by one tool call, optionally filtered.
func (s *Store) ByToolCall(toolCallID string, pred func(*ProposedAction) bool) []*ProposedAction {
	return s.filter(func(a *ProposedAction) bool {
		return a.ToolCallID == toolCallID && (pred == nil || pred(a))
	})
}

func (s *Store) ByMessage(messageID string) []*ProposedAction {
	return s.filter(func(a *ProposedAction) bool { return a.MessageID == messageID })
}

func (s *Store) ByStatus(status Status) []*ProposedAction {
	return s.filter(func(a *ProposedAction) bool { return a.Status == status })
}

// All returns every action in insertion order.
func (s *Store) All() []*ProposedAction {
	return s.filter(nil)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*ProposedAction)
	s.order = nil
}

func (s *Store) filter(pred func(*ProposedAction) bool) []*ProposedAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ProposedAction, 0)
	for _, id := range s.order {
		a := s.byID[id]
		if pred == nil || pred(a) {
			out = append(out, a.clone())
		}
	}
	return out
}

// IsType returns a predicate matching one action type.
func IsType(t ActionType) func(*ProposedAction) bool {
	return func(a *ProposedAction) bool { return a.Type == t }
}
