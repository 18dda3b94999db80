// Package scanner reconciles the cards directory with the metadata store and
// the in-memory index. A full sweep runs at startup and on a timer; between
// sweeps an fsnotify watch picks up changes with a short debounce. The
// scanner runs detached from request handling and never blocks it.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/wt7141789/ST-Manager/internal/cards"
	"github.com/wt7141789/ST-Manager/internal/index"
	"github.com/wt7141789/ST-Manager/internal/store"
	"github.com/wt7141789/ST-Manager/pkg/models"
)

// Scanner keeps filesystem, store, and index in sync.
type Scanner struct {
	cardsDir  string
	store     *store.Store
	index     *index.Index
	extractor cards.Extractor

	sweepInterval time.Duration
	debounce      time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a scanner over cardsDir.
func New(cardsDir string, s *store.Store, ix *index.Index, ex cards.Extractor, sweepInterval, debounce time.Duration) *Scanner {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Scanner{
		cardsDir:      cardsDir,
		store:         s,
		index:         ix,
		extractor:     ex,
		sweepInterval: sweepInterval,
		debounce:      debounce,
	}
}

// Start runs an initial sweep synchronously, then begins the watch loop in a
// goroutine. Calling Start on a running scanner is a no-op.
func (sc *Scanner) Start(ctx context.Context) error {
	sc.mu.Lock()
	if sc.running {
		sc.mu.Unlock()
		return nil
	}
	sc.running = true
	sc.stopCh = make(chan struct{})
	sc.doneCh = make(chan struct{})
	sc.mu.Unlock()

	if err := os.MkdirAll(sc.cardsDir, 0o755); err != nil {
		sc.abortStart()
		return err
	}
	if err := sc.Sweep(ctx); err != nil {
		sc.abortStart()
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		sc.abortStart()
		return err
	}
	sc.mu.Lock()
	sc.watcher = w
	sc.mu.Unlock()
	if err := sc.watchTree(w); err != nil {
		log.Warn().Err(err).Msg("watch setup incomplete, relying on periodic sweep")
	}

	go sc.loop(ctx, w)
	return nil
}

// abortStart unwinds the running state when Start fails before the watch
// loop is spawned, so a later Stop returns instead of waiting on a loop that
// never ran.
func (sc *Scanner) abortStart() {
	sc.mu.Lock()
	sc.running = false
	close(sc.doneCh)
	sc.mu.Unlock()
}

// Stop shuts the watch loop down and waits for it to exit.
func (sc *Scanner) Stop() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = false
	close(sc.stopCh)
	done := sc.doneCh
	sc.mu.Unlock()
	<-done
}

func (sc *Scanner) loop(ctx context.Context, w *fsnotify.Watcher) {
	defer close(sc.doneCh)
	defer w.Close()

	ticker := time.NewTicker(sc.sweepInterval)
	defer ticker.Stop()

	var pending <-chan time.Time
	for {
		select {
		case <-sc.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.sweepLogged(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.Add(ev.Name)
				}
			}
			// Coalesce bursts (editor saves, batch moves) into one sweep.
			pending = time.After(sc.debounce)
		case <-pending:
			pending = nil
			sc.sweepLogged(ctx)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (sc *Scanner) sweepLogged(ctx context.Context) {
	if err := sc.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("sweep failed")
	}
}

// Sweep walks the cards directory once and reconciles store and index: new
// files are extracted and inserted, vanished ids removed, changed files
// refreshed. Renames done by the executor have already updated the store, so
// the next sweep sees them as no-ops.
func (sc *Scanner) Sweep(ctx context.Context) error {
	onDisk := make(map[string]fs.FileInfo)
	err := filepath.WalkDir(sc.cardsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".png") {
			return nil
		}
		rel, err := filepath.Rel(sc.cardsDir, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		onDisk[filepath.ToSlash(rel)] = fi
		return nil
	})
	if err != nil {
		return err
	}

	known, err := sc.store.ListCards(ctx)
	if err != nil {
		return err
	}
	knownByID := make(map[string]*models.Card, len(known))
	for i := range known {
		knownByID[known[i].ID] = &known[i]
	}

	var added, updated, removed int
	for id, fi := range onDisk {
		prev, ok := knownByID[id]
		if ok && prev.FileSize == fi.Size() && prev.LastModified == fi.ModTime().Unix() {
			continue
		}
		card := sc.buildCard(ctx, id, fi, prev)
		if err := sc.store.UpsertCard(ctx, card); err != nil {
			log.Warn().Err(err).Str("card", id).Msg("upsert failed")
			continue
		}
		sc.index.Put(card)
		if ok {
			updated++
		} else {
			added++
		}
	}
	for id := range knownByID {
		if _, ok := onDisk[id]; ok {
			continue
		}
		if err := sc.store.DeleteCard(ctx, id); err != nil {
			log.Warn().Err(err).Str("card", id).Msg("delete failed")
			continue
		}
		sc.index.Remove(id)
		removed++
	}

	if added+updated+removed > 0 {
		log.Info().Int("added", added).Int("updated", updated).Int("removed", removed).
			Msg("scan reconciled")
	}
	return nil
}

// buildCard assembles the index record for one file. Extraction failures are
// tolerated: the record falls back to filename-derived metadata. User-owned
// attributes (tags, favorite) survive refreshes.
func (sc *Scanner) buildCard(ctx context.Context, id string, fi fs.FileInfo, prev *models.Card) *models.Card {
	card := &models.Card{
		ID:           id,
		Category:     categoryOf(id),
		Name:         strings.TrimSuffix(filepath.Base(id), filepath.Ext(id)),
		FileSize:     fi.Size(),
		CreatedAt:    fi.ModTime().Unix(),
		LastModified: fi.ModTime().Unix(),
	}
	if prev != nil {
		card.Tags = prev.Tags
		card.Favorite = prev.Favorite
		card.CreatedAt = prev.CreatedAt
	}

	full := filepath.Join(sc.cardsDir, filepath.FromSlash(id))
	info, err := sc.extractor.Extract(ctx, full)
	if err != nil {
		log.Debug().Err(err).Str("card", id).Msg("metadata extraction failed")
		return card
	}
	if info.Name != "" {
		card.Name = info.Name
	}
	card.Version = info.Version
	card.TokenCount = info.TokenCount
	return card
}

// watchTree registers the cards directory and every subdirectory; fsnotify
// watches are not recursive.
func (sc *Scanner) watchTree(w *fsnotify.Watcher) error {
	return filepath.WalkDir(sc.cardsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}

func categoryOf(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[:i]
	}
	return ""
}
