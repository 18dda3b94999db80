package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wt7141789/ST-Manager/internal/api/handlers"
	"github.com/wt7141789/ST-Manager/internal/api/middleware"
	"github.com/wt7141789/ST-Manager/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/reload", h.ReloadCards)
		})

		r.Route("/automation", func(r chi.Router) {
			r.Route("/rulesets", func(r chi.Router) {
				r.Get("/", h.ListRulesets)
				r.Post("/", h.SaveRuleset)
				r.Post("/import", h.ImportRuleset)
				r.Route("/{rulesetID}", func(r chi.Router) {
					r.Get("/", h.GetRuleset)
					r.Delete("/", h.DeleteRuleset)
					r.Get("/export", h.ExportRuleset)
				})
			})
			r.Post("/execute", h.Execute)
			r.Get("/global_setting", h.GetGlobalSetting)
			r.Post("/global_setting", h.SetGlobalSetting)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "st-manager",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
		})
	}
}
