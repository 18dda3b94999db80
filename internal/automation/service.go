package automation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wt7141789/ST-Manager/internal/cards"
	"github.com/wt7141789/ST-Manager/internal/index"
	"github.com/wt7141789/ST-Manager/internal/store"
	"github.com/wt7141789/ST-Manager/pkg/models"
)

var tracer = otel.Tracer("st-manager/automation")

// Validation errors, reported synchronously with no partial work performed.
var (
	ErrNoRuleset = errors.New("no ruleset selected")
	ErrNoCards   = errors.New("no cards matched the selection")
)

// Result aggregates one batch run.
type Result struct {
	Processed int
	Summary   models.ExecuteSummary
	// Skipped counts cards dropped by per-item recoverable errors.
	Skipped int
}

// Service orchestrates batch rule execution. One Execute call runs one batch
// synchronously; cards within the batch are processed by a bounded worker
// pool. Safe because the selection snapshot is fixed up front and each card's
// mutations go through the index's serialized mutation path.
type Service struct {
	store     *store.Store
	index     *index.Index
	resolver  *Resolver
	executor  *Executor
	extractor cards.Extractor

	cardsDir    string
	workers     int
	deepTimeout time.Duration
}

// NewService wires the automation pipeline.
func NewService(s *store.Store, ix *index.Index, ex cards.Extractor, cardsDir string, workers int, deepTimeout time.Duration) *Service {
	if workers < 1 {
		workers = 1
	}
	if deepTimeout <= 0 {
		deepTimeout = 10 * time.Second
	}
	return &Service{
		store:       s,
		index:       ix,
		resolver:    NewResolver(s),
		executor:    NewExecutor(cardsDir, s, ix),
		extractor:   ex,
		cardsDir:    cardsDir,
		workers:     workers,
		deepTimeout: deepTimeout,
	}
}

// Execute runs one automation batch. Validation failures and systemic
// failures return an error; per-card recoverable failures skip the card and
// the batch continues.
func (s *Service) Execute(ctx context.Context, req models.ExecuteRequest) (*Result, error) {
	ctx, span := tracer.Start(ctx, "automation.execute")
	defer span.End()

	if req.RulesetID == "" {
		return nil, ErrNoRuleset
	}
	// Fail fast instead of blocking: callers get a retryable condition while
	// the index is still loading.
	if !s.index.Initialized() {
		return nil, index.ErrNotReady
	}

	ruleset, err := s.store.GetRuleset(ctx, req.RulesetID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.resolver.Snapshot(ctx, req.CardIDs, req.Category, req.IsRecursive())
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, ErrNoCards
	}

	needsDeep := NeedsDeepScan(ruleset)
	span.SetAttributes(
		attribute.String("ruleset.id", req.RulesetID),
		attribute.Int("snapshot.size", len(snapshot)),
		attribute.Bool("needs_deep", needsDeep),
	)
	log.Info().
		Str("ruleset", req.RulesetID).
		Int("cards", len(snapshot)).
		Bool("deep", needsDeep).
		Msg("automation batch started")

	var (
		mu  sync.Mutex
		res Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range snapshot {
		id := id
		g.Go(func() error {
			report, processed, err := s.processCard(gctx, id, ruleset, needsDeep)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Recoverable: skip this card, keep the batch going.
				res.Skipped++
				log.Warn().Err(err).Str("card", id).Msg("card skipped")
				return nil
			}
			if !processed {
				return nil
			}
			res.Processed++
			if report.Moved() {
				res.Summary.Moves++
			}
			if report.TagsChanged() {
				res.Summary.TagChanges++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Int("processed", res.Processed).
		Int("moves", res.Summary.Moves).
		Int("tag_changes", res.Summary.TagChanges).
		Int("skipped", res.Skipped).
		Msg("automation batch finished")
	return &res, nil
}

// processCard evaluates and applies the ruleset for one card. The bool
// result is false when the card fired no actions (skipped, not counted).
func (s *Service) processCard(ctx context.Context, id string, rs *models.Ruleset, needsDeep bool) (*ApplyReport, bool, error) {
	card, ok := s.index.Get(id)
	if !ok {
		// Selected id no longer cached; treat like the original: silently skip.
		return nil, false, nil
	}

	ectx := NewContext(card)
	if needsDeep && (ectx.Deep == nil || ectx.Deep.CharacterBook == nil || ectx.Deep.Extensions == nil) {
		if err := s.fetchDeep(ctx, id, ectx); err != nil {
			// Missing deep data is left absent so deep conditions fail; the
			// card itself is still evaluated against its cached attributes.
			log.Warn().Err(err).Str("card", id).Msg("deep scan failed")
		}
	}

	actions := Evaluate(ectx, rs)
	plan := MergeActions(actions)
	if plan.Empty() {
		return nil, false, nil
	}

	report, err := s.executor.Apply(ctx, id, plan)
	if err != nil {
		return report, false, err
	}
	return report, true, nil
}

// fetchDeep reads the card file under its own timeout. Runs outside any
// index lock: the context was cloned before, the splice touches only the
// local record.
func (s *Service) fetchDeep(ctx context.Context, id string, ectx *Context) error {
	fctx, cancel := context.WithTimeout(ctx, s.deepTimeout)
	defer cancel()

	full := filepath.Join(s.cardsDir, filepath.FromSlash(id))
	info, err := s.extractor.Extract(fctx, full)
	if err != nil {
		return fmt.Errorf("extract %s: %w", id, err)
	}
	ectx.SpliceDeep(info.Deep)
	return nil
}
