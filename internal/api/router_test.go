package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wt7141789/ST-Manager/internal/api/handlers"
	"github.com/wt7141789/ST-Manager/internal/automation"
	"github.com/wt7141789/ST-Manager/internal/cards"
	"github.com/wt7141789/ST-Manager/internal/config"
	"github.com/wt7141789/ST-Manager/internal/index"
	"github.com/wt7141789/ST-Manager/internal/scanner"
	"github.com/wt7141789/ST-Manager/internal/store"
	"github.com/wt7141789/ST-Manager/pkg/models"
)

type testAPI struct {
	handler  http.Handler
	store    *store.Store
	index    *index.Index
	cardsDir string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ix := index.New(s)
	ix.SetStatus(index.StatusReady, "")
	cardsDir := t.TempDir()
	ex := cards.PNGExtractor{}
	sc := scanner.New(cardsDir, s, ix, ex, time.Hour, time.Second)
	svc := automation.NewService(s, ix, ex, cardsDir, 2, time.Second)
	h := handlers.New(s, ix, svc, sc, "test")

	cfg := &config.Config{Version: "test"}
	return &testAPI{
		handler:  NewRouter(cfg, h),
		store:    s,
		index:    ix,
		cardsDir: cardsDir,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (a *testAPI) seedCard(t *testing.T, c *models.Card) {
	t.Helper()
	require.NoError(t, a.store.UpsertCard(context.Background(), c))
	a.index.Put(c)
	full := filepath.Join(a.cardsDir, filepath.FromSlash(c.ID))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("png"), 0o644))
}

func TestHealthAndVersion(t *testing.T) {
	a := newTestAPI(t)

	rec, body := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	rec, body = a.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", body["version"])
}

func TestStatusEndpoint(t *testing.T) {
	a := newTestAPI(t)
	rec, body := a.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ready", body["status"])
}

func TestRulesetCRUDOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	doc := map[string]any{
		"meta": map[string]any{"name": "sorter"},
		"rules": []map[string]any{{
			"enabled": true,
			"groups": []map[string]any{{"conditions": []map[string]any{
				{"field": "tags", "operator": "contains", "value": "nsfw"},
			}}},
			"actions": []map[string]any{{"type": "add_tag", "value": "adult"}},
		}},
	}

	rec, body := a.do(t, http.MethodPost, "/api/automation/rulesets/", doc)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	rec, body = a.do(t, http.MethodGet, "/api/automation/rulesets/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := body["items"].([]any)
	require.Len(t, items, 1)

	rec, body = a.do(t, http.MethodGet, "/api/automation/rulesets/"+id+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, id, data["id"])

	rec, body = a.do(t, http.MethodDelete, "/api/automation/rulesets/"+id+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	// Second delete reports failure in the body, not the status code.
	rec, body = a.do(t, http.MethodDelete, "/api/automation/rulesets/"+id+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Delete failed", body["msg"])

	rec, _ = a.do(t, http.MethodGet, "/api/automation/rulesets/"+id+"/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	a.seedCard(t, &models.Card{ID: "foo.png", Tags: []string{"nsfw"}})

	rsID, err := a.store.SaveRuleset(context.Background(), "", &models.Ruleset{
		Meta: models.RulesetMeta{Name: "sorter"},
		Rules: []models.Rule{{
			Groups: []models.ConditionGroup{{Conditions: []models.Condition{
				{Field: "tags", Operator: models.OpContains, Value: "nsfw"},
			}}},
			Actions: []models.Action{
				{Type: models.ActionAddTag, Value: "adult"},
				{Type: models.ActionMoveFolder, Value: "NSFW"},
			},
		}},
	})
	require.NoError(t, err)

	rec, body := a.do(t, http.MethodPost, "/api/automation/execute", map[string]any{
		"card_ids":   []string{"foo.png"},
		"ruleset_id": rsID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["processed"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["moves"])
	assert.Equal(t, float64(1), summary["tag_changes"])
}

func TestExecuteValidationOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	rec, body := a.do(t, http.MethodPost, "/api/automation/execute", map[string]any{
		"card_ids": []string{"a.png"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, body = a.do(t, http.MethodPost, "/api/automation/execute", map[string]any{
		"card_ids":   []string{"a.png"},
		"ruleset_id": "no-such-id",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ruleset does not exist", body["msg"])
}

func TestExecute503WhileInitializing(t *testing.T) {
	a := newTestAPI(t)
	a.index.SetStatus(index.StatusInitializing, "loading")

	rec, body := a.do(t, http.MethodPost, "/api/automation/execute", map[string]any{
		"card_ids":   []string{"a.png"},
		"ruleset_id": "anything",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestGlobalSetting(t *testing.T) {
	a := newTestAPI(t)

	rec, body := a.do(t, http.MethodGet, "/api/automation/global_setting", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["ruleset_id"])

	rec, _ = a.do(t, http.MethodPost, "/api/automation/global_setting", map[string]any{
		"ruleset_id": "rs-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = a.do(t, http.MethodGet, "/api/automation/global_setting", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rs-1", body["ruleset_id"])

	rec, _ = a.do(t, http.MethodPost, "/api/automation/global_setting", map[string]any{
		"ruleset_id": nil,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	_, body = a.do(t, http.MethodGet, "/api/automation/global_setting", nil)
	assert.Nil(t, body["ruleset_id"])
}

func TestExportRuleset(t *testing.T) {
	a := newTestAPI(t)
	id, err := a.store.SaveRuleset(context.Background(), "", &models.Ruleset{
		Meta:  models.RulesetMeta{Name: "My Sorter!"},
		Rules: []models.Rule{{}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/automation/rulesets/"+id+"/export", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `"My Sorter.json"`)

	var exported models.Ruleset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.Empty(t, exported.ID, "export strips the id")
	assert.Equal(t, "My Sorter!", exported.Meta.Name)
}

func TestExportRulesetNonASCIIName(t *testing.T) {
	a := newTestAPI(t)
	id, err := a.store.SaveRuleset(context.Background(), "", &models.Ruleset{
		Meta:  models.RulesetMeta{Name: "角色分类/v2"},
		Rules: []models.Rule{{}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/automation/rulesets/"+id+"/export", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `"角色分类v2.json"`,
		"letters outside ASCII survive, path separators do not")
}

func TestImportRuleset(t *testing.T) {
	a := newTestAPI(t)

	doImport := func(filename, content string) (*httptest.ResponseRecorder, map[string]any) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		fmt.Fprint(fw, content)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/automation/rulesets/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)

		var out map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return rec, out
	}

	rec, body := doImport("sorter.json", `{"meta":{"name":"Imported"},"rules":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Imported", body["name"])
	assert.NotEmpty(t, body["id"])

	// Name falls back to the filename when the document has none.
	rec, body = doImport("from-file.json", `{"rules":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-file", body["name"])

	rec, body = doImport("sorter.txt", `{"rules":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid file type", body["msg"])

	rec, body = doImport("sorter.json", `{"meta":{"name":"x"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.True(t, strings.Contains(body["msg"].(string), "rules"))

	// Every successful import created a distinct document.
	sums, err := a.store.ListRulesets(context.Background())
	require.NoError(t, err)
	assert.Len(t, sums, 2)
}

func TestListCardsOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	a.seedCard(t, &models.Card{ID: "a.png"})
	a.seedCard(t, &models.Card{ID: "X/b.png", Category: "X"})
	a.seedCard(t, &models.Card{ID: "X/Y/c.png", Category: "X/Y"})

	rec, body := a.do(t, http.MethodGet, "/api/cards/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["items"], 3)

	_, body = a.do(t, http.MethodGet, "/api/cards/?category=X", nil)
	assert.Len(t, body["items"], 1)

	_, body = a.do(t, http.MethodGet, "/api/cards/?category=X&recursive=true", nil)
	assert.Len(t, body["items"], 2)
}

func TestListCards503WhileInitializing(t *testing.T) {
	a := newTestAPI(t)
	a.index.SetStatus(index.StatusInitializing, "loading")

	rec, body := a.do(t, http.MethodGet, "/api/cards/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestReloadRecoversFromErrorState(t *testing.T) {
	a := newTestAPI(t)
	a.index.SetStatus(index.StatusError, "initial load failed")

	rec, _ := a.do(t, http.MethodGet, "/api/cards/", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body := a.do(t, http.MethodPost, "/api/cards/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, _ = a.do(t, http.MethodGet, "/api/cards/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReloadCards(t *testing.T) {
	a := newTestAPI(t)

	// A file dropped on disk without going through the index.
	require.NoError(t, os.WriteFile(filepath.Join(a.cardsDir, "new.png"), []byte("png"), 0o644))

	rec, body := a.do(t, http.MethodPost, "/api/cards/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["cards"])

	_, ok := a.index.Get("new.png")
	assert.True(t, ok)
}
