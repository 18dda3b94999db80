// Package index holds the in-memory Record Index: the id→card mapping every
// request path reads from. It is an explicitly owned service object handed to
// its consumers at construction time, never a package global. Structural
// mutations (move, add, remove) are serialized against concurrent readers by
// a single RWMutex; callers must not hold references into the map, so Get
// returns clones.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wt7141789/ST-Manager/internal/store"
	"github.com/wt7141789/ST-Manager/pkg/models"
)

// ErrNotReady is returned when the index has not finished loading. Callers
// should surface it as a retryable condition rather than blocking.
var ErrNotReady = errors.New("card index not ready")

// Status is the initialization state machine: initializing → ready | error.
// A new Reload moves the index back to initializing first.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

// Index is the process-wide card cache.
type Index struct {
	store *store.Store

	mu      sync.RWMutex
	cards   map[string]*models.Card
	status  Status
	message string
}

// New creates an empty index in the initializing state.
func New(s *store.Store) *Index {
	return &Index{
		store:  s,
		cards:  make(map[string]*models.Card),
		status: StatusInitializing,
	}
}

// Status returns the current lifecycle state and its human-readable message.
func (ix *Index) Status() (Status, string) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.status, ix.message
}

// SetStatus transitions the lifecycle state.
func (ix *Index) SetStatus(s Status, msg string) {
	ix.mu.Lock()
	ix.status = s
	ix.message = msg
	ix.mu.Unlock()
}

// Initialized reports whether the index is ready to serve.
func (ix *Index) Initialized() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.status == StatusReady
}

// Reload rebuilds the map from the backing store. The swap is atomic: readers
// see either the old or the new mapping, never a partial one. Reload also
// drives the lifecycle: back to initializing first, then ready on success or
// error on failure, so a reload is the way out of a terminal error state.
func (ix *Index) Reload(ctx context.Context) error {
	ix.SetStatus(StatusInitializing, "reloading card cache")

	cards, err := ix.store.ListCards(ctx)
	if err != nil {
		ix.SetStatus(StatusError, err.Error())
		return fmt.Errorf("reload index: %w", err)
	}

	next := make(map[string]*models.Card, len(cards))
	for i := range cards {
		c := cards[i]
		next[c.ID] = &c
	}

	ix.mu.Lock()
	ix.cards = next
	ix.status = StatusReady
	ix.message = ""
	ix.mu.Unlock()

	log.Info().Int("cards", len(next)).Msg("card index reloaded")
	return nil
}

// Get returns a clone of the cached record for id.
func (ix *Index) Get(id string) (*models.Card, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.cards[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// All returns clones of every cached record, ordered by id.
func (ix *Index) All() []models.Card {
	ix.mu.RLock()
	out := make([]models.Card, 0, len(ix.cards))
	for _, c := range ix.cards {
		out = append(out, *c.Clone())
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of cached records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.cards)
}

// Put inserts or replaces a record.
func (ix *Index) Put(c *models.Card) {
	ix.mu.Lock()
	ix.cards[c.ID] = c.Clone()
	ix.mu.Unlock()
}

// Remove drops a record.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	delete(ix.cards, id)
	ix.mu.Unlock()
}

// Rename rewrites a record's identifier and category after a move.
func (ix *Index) Rename(oldID, newID, newCategory string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.cards[oldID]
	if !ok {
		return
	}
	delete(ix.cards, oldID)
	c.ID = newID
	c.Category = newCategory
	ix.cards[newID] = c
}

// SetTags replaces a record's tag set.
func (ix *Index) SetTags(id string, tags []string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if c, ok := ix.cards[id]; ok {
		c.Tags = append([]string(nil), tags...)
	}
}

// SetFavorite sets a record's favorite flag.
func (ix *Index) SetFavorite(id string, favorite bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if c, ok := ix.cards[id]; ok {
		c.Favorite = favorite
	}
}
