package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ws "github.com/voxhub/webhook-dispatcher/internal/websocket"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(trigger *TriggerHandler, webhooks *WebhookHandler, logs *LogHandler, stats *StatsHandler, hub *ws.Hub, promRegistry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for the dashboard and trigger preflights
	r.Use(corsMiddleware)

	// Trigger endpoint. The bare path (no id) is answered 400 without
	// touching the datastore.
	r.HandleFunc("/webhook-handler", trigger.Handle)
	r.HandleFunc("/webhook-handler/*", trigger.Handle)

	// WebSocket delivery feed
	r.Get("/ws", hub.HandleWebSocket)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	// Management API
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", webhooks.Create)
			r.Get("/", webhooks.List)
			r.Get("/{id}", webhooks.Get)
			r.Patch("/{id}", webhooks.Update)
			r.Delete("/{id}", webhooks.Delete)
			r.Get("/{id}/health", webhooks.Health)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", logs.List)
			r.Get("/{id}", logs.Get)
		})

		r.Get("/stats", stats.Stats)
	})

	return r
}

// corsMiddleware reflects a permissive policy so browser-based dashboards
// and trigger sources can reach the service directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
