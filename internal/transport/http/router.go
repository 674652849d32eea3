package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes lists what the HTTP server exposes. Nil handlers are not mounted.
type Routes struct {
	WebhookPath string
	Webhook     http.Handler
	Dashboard   *Dashboard
	Ready       map[string]Pinger
}

func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", healthHandler)
	mux.HandleFunc("GET /healthz", readyHandler(routes.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	if routes.Webhook != nil {
		path := routes.WebhookPath
		if path == "" {
			path = "/api/telegram"
		}
		mux.Handle("POST "+path, routes.Webhook)
	}
	if routes.Dashboard != nil {
		routes.Dashboard.Register(mux)
	}
	return mux
}
