package handlers

import (
	"net/http"
	"strings"

	"github.com/wt7141789/ST-Manager/pkg/models"
)

// ListCards returns the cached records, optionally filtered by category
// (exact, or prefix with recursive=true).
func (h *Handlers) ListCards(w http.ResponseWriter, r *http.Request) {
	if !h.Index.Initialized() {
		respondFail(w, http.StatusServiceUnavailable, "card index is initializing, retry shortly")
		return
	}

	q := r.URL.Query()
	all := h.Index.All()
	if !q.Has("category") {
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "items": all})
		return
	}

	category := q.Get("category")
	recursive := q.Get("recursive") == "true"
	items := make([]models.Card, 0, len(all))
	for _, c := range all {
		switch {
		case c.Category == category:
			items = append(items, c)
		case recursive && (category == "" || strings.HasPrefix(c.ID, category+"/")):
			items = append(items, c)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "items": items})
}

// ReloadCards re-reconciles the cards directory and rebuilds the index.
func (h *Handlers) ReloadCards(w http.ResponseWriter, r *http.Request) {
	if h.Scanner != nil {
		if err := h.Scanner.Sweep(r.Context()); err != nil {
			respondFail(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := h.Index.Reload(r.Context()); err != nil {
		respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "cards": h.Index.Len()})
}
