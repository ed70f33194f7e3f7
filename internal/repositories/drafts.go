package repositories

import (
	"errors"
	"sync"

	"github.com/aozora-farm/api/internal/services"
)

// ErrDraftNotFound indicates the draft id is unknown or already released.
var ErrDraftNotFound = errors.New("drafts: draft not found")

// DraftStore keeps live order composers keyed by draft id. Drafts are
// server-side session state for the ordering flow; submitted or
// abandoned ones are released by the owning handler.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[string]*services.OrderComposer
}

// NewDraftStore constructs an empty store.
func NewDraftStore() *DraftStore {
	return &DraftStore{drafts: make(map[string]*services.OrderComposer)}
}

// Put registers the composer under its draft id.
func (s *DraftStore) Put(composer *services.OrderComposer) {
	if composer == nil {
		return
	}
	s.mu.Lock()
	s.drafts[composer.ID()] = composer
	s.mu.Unlock()
}

// Get returns the composer for the draft id.
func (s *DraftStore) Get(id string) (*services.OrderComposer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	composer, ok := s.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return composer, nil
}

// Delete releases the draft.
func (s *DraftStore) Delete(id string) {
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
}
