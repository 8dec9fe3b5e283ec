package http

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obiente/warmup/voicecapture/internal/engine"
	"github.com/obiente/warmup/voicecapture/internal/ws"
)

func NewRouter(e *engine.Engine, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "model": e.Config().Kind().String()})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	// Record action: one recording per start message
	wss := ws.NewServer(e)
	mux.HandleFunc("/ws/record", wss.Handle)
	return mux
}
