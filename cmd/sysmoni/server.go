package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/scheduler"
)

type health struct {
	State string     `json:"state"`
	Tick  uint64     `json:"tick"`
	At    *time.Time `json:"at"`
}

type monitorState interface {
	State() scheduler.State
	LatestSnapshot() *model.SystemSnapshot
}

// makeHandler serves the Prometheus registry and a liveness probe that
// reports 503 unless sampling is running.
func makeHandler(reg *prometheus.Registry, mon monitorState) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st := mon.State()
		w.Header().Set("Content-Type", "application/json")
		if st != scheduler.Running {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		h := health{State: st.String()}
		if snap := mon.LatestSnapshot(); snap != nil {
			h.Tick, h.At = snap.Tick, &snap.Timestamp
		}
		_ = json.NewEncoder(w).Encode(h)
	})

	return mux
}
