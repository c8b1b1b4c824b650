package observability

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// StatsHandler serves the Stats snapshot as JSON.
func StatsHandler(stats *Stats) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats.Snapshot())
	})
}

// NewMux routes /metrics to Prometheus and /stats to the JSON snapshot.
func NewMux(stats *Stats, prom *Prometheus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	mux.Handle("/stats", StatsHandler(stats))
	return mux
}
