package automation

import (
	"context"
	"fmt"
	"sort"

	"github.com/wt7141789/ST-Manager/internal/store"
)

// Resolver turns an execution request into a fixed selection snapshot.
type Resolver struct {
	store *store.Store
}

// NewResolver creates a selection resolver over the backing store.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Snapshot resolves the explicit id list plus the optional category query
// into a deduplicated id set, fixed at call time. The category query is
// issued exactly once per batch: moves performed later in the same batch can
// neither re-include a card (double processing) nor drop one that was
// selected (under-processing). Returned sorted for stable iteration.
func (r *Resolver) Snapshot(ctx context.Context, explicit []string, category *string, recursive bool) ([]string, error) {
	seen := make(map[string]struct{}, len(explicit))
	for _, id := range explicit {
		if id != "" {
			seen[id] = struct{}{}
		}
	}

	if category != nil {
		ids, err := r.store.QueryCategory(ctx, *category, recursive)
		if err != nil {
			return nil, fmt.Errorf("resolve category selection: %w", err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
