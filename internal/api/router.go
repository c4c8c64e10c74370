package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID, s.accessLog, s.limitBody)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/reload", s.handleReload)
		r.Get("/effects", s.handleListEffects)

		r.Route("/resources", func(r chi.Router) {
			r.Get("/", s.handleListResources)

			r.Route("/{target}", func(r chi.Router) {
				r.Get("/", s.handleGetResources)
				r.Put("/", s.handleAssign)
				r.Post("/refresh", s.handleRefresh)
				r.Put("/fade", s.handleFade)
				r.Put("/effect", s.handleStartEffect)
				r.Delete("/effect", s.handleStopEffect)
			})
		})
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth reports the bridge identity and resource count.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m := s.dispatcher.Metrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"bridge_id":  s.dispatcher.ID(),
		"name":       s.dispatcher.Name(),
		"resources":  m.Resources,
		"at_large":   m.AtLarge,
		"ws_clients": s.hub.ClientCount(),
	})
}
