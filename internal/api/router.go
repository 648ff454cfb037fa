package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// Liveness and readiness are public, no auth required
		r.Get("/status", h.Status)
		r.Get("/ready", h.Ready)

		r.Group(func(r chi.Router) {
			if cfg.BackendAPIKey != "" {
				r.Use(APIKeyAuth(cfg.BackendAPIKey))
			}

			// Jobs
			r.Post("/jobs", h.SubmitJob)
			r.Get("/jobs", h.ListJobs)
			r.Post("/jobs/triggerRemaining", h.TriggerRemaining)
			// static "all" wins over the {id} param in chi's trie
			r.Delete("/jobs/all", h.DeleteAllJobs)
			r.Get("/jobs/{id}", h.GetJob)
			r.Delete("/jobs/{id}", h.DeleteJob)
			r.Get("/jobs/{id}/result", h.GetJobResult)

			// Audio utilities
			r.Post("/audio-duration", h.AudioDuration)
			r.Post("/audio-size", h.AudioSize)
			r.Post("/check-silence", h.CheckSilence)
			r.Post("/normalize-audio", h.NormalizeAudio)
			r.Get("/download/{filename}", h.Download)

			// Capabilities for clients building submission forms
			r.Get("/languages", h.ListLanguages)
			r.Get("/voices", h.ListVoices)
			r.Get("/videoTypes", h.ListVideoTypes)
			r.Get("/videoQualities", h.ListVideoQualities)
		})
	})

	return r
}
