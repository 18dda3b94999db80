package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/wt7141789/ST-Manager/internal/automation"
	"github.com/wt7141789/ST-Manager/internal/index"
	"github.com/wt7141789/ST-Manager/internal/store"
	"github.com/wt7141789/ST-Manager/pkg/models"
)

// ListRulesets returns id + summary of every stored ruleset.
func (h *Handlers) ListRulesets(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListRulesets(r.Context())
	if err != nil {
		respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []models.RulesetSummary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "items": items})
}

// GetRuleset returns one ruleset document.
func (h *Handlers) GetRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rulesetID")
	rs, err := h.Store.GetRuleset(r.Context(), id)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondFail(w, http.StatusNotFound, "Not found")
		} else {
			respondFail(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": rs})
}

// SaveRuleset creates or updates a ruleset document. The server assigns an
// id when the document carries none.
func (h *Handlers) SaveRuleset(w http.ResponseWriter, r *http.Request) {
	var rs models.Ruleset
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := h.Store.SaveRuleset(r.Context(), rs.ID, &rs)
	if err != nil {
		respondFail(w, http.StatusOK, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

// DeleteRuleset removes a ruleset document.
func (h *Handlers) DeleteRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rulesetID")
	ok, err := h.Store.DeleteRuleset(r.Context(), id)
	if err != nil {
		respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondFail(w, http.StatusOK, "Delete failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Execute runs one automation batch against the selected cards.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.Automation.Execute(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, index.ErrNotReady):
			// Retryable: the cache is still loading.
			respondFail(w, http.StatusServiceUnavailable, "card index is initializing, retry shortly")
		case errors.Is(err, automation.ErrNoRuleset),
			errors.Is(err, automation.ErrNoCards):
			respondFail(w, http.StatusOK, err.Error())
		default:
			var nf *store.ErrNotFound
			if errors.As(err, &nf) {
				respondFail(w, http.StatusOK, "ruleset does not exist")
				return
			}
			log.Error().Err(err).Msg("automation batch failed")
			respondFail(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": res.Processed,
		"summary":   res.Summary,
	})
}

// GetGlobalSetting returns the default ruleset id, or null when unset.
func (h *Handlers) GetGlobalSetting(w http.ResponseWriter, r *http.Request) {
	id, err := h.Store.GetSetting(r.Context(), SettingDefaultRuleset)
	if err != nil {
		respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	var out any
	if id != "" {
		out = id
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "ruleset_id": out})
}

// SetGlobalSetting writes the default ruleset id; null clears it.
func (h *Handlers) SetGlobalSetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RulesetID *string `json:"ruleset_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	val := ""
	if req.RulesetID != nil {
		val = *req.RulesetID
	}
	if err := h.Store.SetSetting(r.Context(), SettingDefaultRuleset, val); err != nil {
		respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ExportRuleset serializes a ruleset as a standalone attachment. The id is
// stripped so an import always creates a new document.
func (h *Handlers) ExportRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rulesetID")
	rs, err := h.Store.GetRuleset(r.Context(), id)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondFail(w, http.StatusNotFound, "Not found")
		} else {
			respondFail(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	rs.ID = ""

	name := rs.Meta.Name
	if name == "" {
		name = "ruleset"
	}
	filename := safeFilename(name) + ".json"

	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

// ImportRuleset accepts an exported document and persists it as a new
// ruleset, never overwriting an existing id.
func (h *Handlers) ImportRuleset(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		respondFail(w, http.StatusOK, "No file uploaded")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		respondFail(w, http.StatusOK, "Invalid file type")
		return
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		respondFail(w, http.StatusOK, "Invalid JSON")
		return
	}
	if _, ok := raw["rules"]; !ok {
		respondFail(w, http.StatusOK, "Invalid ruleset format (missing 'rules')")
		return
	}

	doc, _ := json.Marshal(raw)
	var rs models.Ruleset
	if err := json.Unmarshal(doc, &rs); err != nil {
		respondFail(w, http.StatusOK, "Invalid ruleset format")
		return
	}
	rs.ID = ""
	if rs.Meta.Name == "" {
		base := filepath.Base(header.Filename)
		rs.Meta.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	id, err := h.Store.SaveRuleset(r.Context(), "", &rs)
	if err != nil {
		log.Error().Err(err).Msg("import ruleset failed")
		respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true, "id": id, "name": rs.Meta.Name,
	})
}

// safeFilename keeps letters and digits of any script, plus spaces, dashes,
// and underscores.
func safeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r),
			r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		out = "ruleset"
	}
	return out
}
