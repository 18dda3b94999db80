package automation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wt7141789/ST-Manager/internal/cards"
	"github.com/wt7141789/ST-Manager/internal/index"
	"github.com/wt7141789/ST-Manager/internal/store"
	"github.com/wt7141789/ST-Manager/pkg/models"
)

// fixture bundles a fresh store, index, and cards directory.
type fixture struct {
	store    *store.Store
	index    *index.Index
	cardsDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ix := index.New(st)
	ix.SetStatus(index.StatusReady, "test")
	return &fixture{store: st, index: ix, cardsDir: t.TempDir()}
}

// seed writes the card into store and index and creates its backing file.
func (f *fixture) seed(t *testing.T, c *models.Card) {
	t.Helper()
	require.NoError(t, f.store.UpsertCard(context.Background(), c))
	f.index.Put(c)

	full := filepath.Join(f.cardsDir, filepath.FromSlash(c.ID))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("png"), 0o644))
}

// stubExtractor serves canned deep data keyed by absolute path suffix.
type stubExtractor struct {
	mu    sync.Mutex
	infos map[string]*models.CardInfo
	err   error
	calls int
}

func (s *stubExtractor) Extract(_ context.Context, path string) (*models.CardInfo, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for suffix, info := range s.infos {
		if strings.HasSuffix(filepath.ToSlash(path), suffix) {
			return info, nil
		}
	}
	return nil, cards.ErrNoCardData
}

func strPtr(s string) *string { return &s }
