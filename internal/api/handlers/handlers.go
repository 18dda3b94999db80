// Package handlers implements the HTTP handlers of the ST-Manager API.
// Responses follow the {"success": bool, ...} contract of the UI; validation
// failures report success=false with a message rather than a transport error,
// while a not-yet-ready index maps to 503 so clients know to retry.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wt7141789/ST-Manager/internal/automation"
	"github.com/wt7141789/ST-Manager/internal/index"
	"github.com/wt7141789/ST-Manager/internal/scanner"
	"github.com/wt7141789/ST-Manager/internal/store"
)

// SettingDefaultRuleset is the settings key holding the global default
// ruleset id.
const SettingDefaultRuleset = "active_automation_ruleset"

// Handlers holds all handler dependencies.
type Handlers struct {
	Store      *store.Store
	Index      *index.Index
	Automation *automation.Service
	Scanner    *scanner.Scanner
	Version    string
}

// New creates a Handlers instance.
func New(s *store.Store, ix *index.Index, svc *automation.Service, sc *scanner.Scanner, version string) *Handlers {
	return &Handlers{Store: s, Index: ix, Automation: svc, Scanner: sc, Version: version}
}

// Status reports the index lifecycle state.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, msg := h.Index.Status()
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  status,
		"message": msg,
		"cards":   h.Index.Len(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondFail writes the UI error shape: {"success": false, "msg": ...}.
func respondFail(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"success": false, "msg": msg})
}
