package automation

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wt7141789/ST-Manager/internal/index"
	"github.com/wt7141789/ST-Manager/internal/store"
	"github.com/wt7141789/ST-Manager/pkg/models"
)

// ApplyReport records what applying a plan actually changed on one card.
// No-ops (move target equals current category, adding a tag already present)
// are not reported.
type ApplyReport struct {
	MovedTo         string
	NewID           string
	TagsAdded       []string
	TagsRemoved     []string
	FavoriteChanged bool
}

// Moved reports whether the card changed category.
func (r *ApplyReport) Moved() bool { return r.MovedTo != "" || r.NewID != "" }

// TagsChanged reports whether any tag membership changed.
func (r *ApplyReport) TagsChanged() bool {
	return len(r.TagsAdded) > 0 || len(r.TagsRemoved) > 0
}

// Executor applies merged plans to cards: file move, index and store update,
// tag and favorite mutation. Mutations of one card form a single logical
// unit, but there is no rollback: if the move lands and a tag update fails,
// the move stays and the report reflects exactly what happened.
type Executor struct {
	cardsDir string
	store    *store.Store
	index    *index.Index

	// moveMu serializes moves so the existence check and the rename act as
	// one step across batch workers.
	moveMu sync.Mutex
}

// NewExecutor creates an executor rooted at cardsDir.
func NewExecutor(cardsDir string, s *store.Store, ix *index.Index) *Executor {
	return &Executor{cardsDir: cardsDir, store: s, index: ix}
}

// Apply performs the plan against the card identified by id. The returned
// report is valid even when err != nil: it covers the mutations that landed
// before the failure.
func (e *Executor) Apply(ctx context.Context, id string, plan *ExecutionPlan) (*ApplyReport, error) {
	report := &ApplyReport{}
	if plan.Empty() {
		return report, nil
	}

	card, ok := e.index.Get(id)
	if !ok {
		return report, &store.ErrNotFound{Entity: "card", Key: id}
	}

	if plan.Move != nil && *plan.Move != card.Category {
		newID, err := e.moveCard(ctx, card, *plan.Move)
		if err != nil {
			return report, err
		}
		report.MovedTo = *plan.Move
		report.NewID = newID
		card.ID = newID
		card.Category = *plan.Move
	}

	if len(plan.AddTags) > 0 || len(plan.RemoveTags) > 0 {
		added, removed := applyTagSets(card, plan)
		if len(added) > 0 || len(removed) > 0 {
			if err := e.store.UpdateCardTags(ctx, card.ID, card.Tags); err != nil {
				return report, err
			}
			e.index.SetTags(card.ID, card.Tags)
			report.TagsAdded = added
			report.TagsRemoved = removed
		}
	}

	if plan.Favorite != nil && *plan.Favorite != card.Favorite {
		if err := e.store.UpdateCardFavorite(ctx, card.ID, *plan.Favorite); err != nil {
			return report, err
		}
		e.index.SetFavorite(card.ID, *plan.Favorite)
		report.FavoriteChanged = true
	}

	return report, nil
}

// moveCard relocates the backing file and rewrites the identifier in store
// and index. The new id is target/<filename>.
func (e *Executor) moveCard(ctx context.Context, card *models.Card, target string) (string, error) {
	newID := path.Base(card.ID)
	if target != "" {
		newID = path.Join(target, newID)
	}
	if newID == card.ID {
		return card.ID, nil
	}

	e.moveMu.Lock()
	defer e.moveMu.Unlock()

	src := filepath.Join(e.cardsDir, filepath.FromSlash(card.ID))
	dst := filepath.Join(e.cardsDir, filepath.FromSlash(newID))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create target category: %w", err)
	}
	// os.Rename would clobber an existing file. A colliding basename in the
	// target category refuses the move; the batch skips this card.
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("move card file: %s already exists", newID)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("check move target: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move card file: %w", err)
	}

	if err := e.store.RenameCard(ctx, card.ID, newID, target); err != nil {
		// File already moved; leave it and surface the index inconsistency.
		log.Error().Err(err).Str("card", card.ID).Str("to", newID).
			Msg("card file moved but store update failed")
		return "", err
	}
	e.index.Rename(card.ID, newID, target)

	log.Debug().Str("card", card.ID).Str("to", newID).Msg("card moved")
	return newID, nil
}

// applyTagSets mutates card.Tags in place, returning the tags whose
// membership actually changed.
func applyTagSets(card *models.Card, plan *ExecutionPlan) (added, removed []string) {
	for _, tag := range plan.AddList() {
		if !card.HasTag(tag) {
			card.Tags = append(card.Tags, tag)
			added = append(added, tag)
		}
	}
	if len(plan.RemoveTags) > 0 {
		kept := card.Tags[:0]
		for _, tag := range card.Tags {
			if _, drop := plan.RemoveTags[tag]; drop {
				removed = append(removed, tag)
			} else {
				kept = append(kept, tag)
			}
		}
		card.Tags = kept
	}
	return added, removed
}
