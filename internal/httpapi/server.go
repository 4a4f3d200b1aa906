// Package httpapi is the debug surface an operator hits from outside
// the cluster: current role/term/log state, and request metrics. It
// never touches consensus state directly — everything it serves comes
// from a Status() or Snapshot() accessor, so the consensus loop never
// has to share a lock with an HTTP handler goroutine.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/arcflux/ledgerraft/internal/metrics"
	"github.com/arcflux/ledgerraft/internal/raft"
)

// replica is the slice of *raft.Replica this package depends on.
type replica interface {
	Status() raft.Status
}

// Server serves the debug HTTP surface for one replica.
type Server struct {
	replica replica
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// New returns a Server ready to Start.
func New(r replica, m *metrics.Recorder, logger *zap.Logger) *Server {
	return &Server{replica: r, metrics: m, logger: logger}
}

// Start registers the handlers and serves on addr. It blocks; callers
// typically run it in its own goroutine.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	// GET /status - role, term, leader, and log state as JSON.
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.replica.Status()); err != nil {
			s.logger.Error("encode status", zap.Error(err))
		}
	})

	// GET /metrics - request counts and latency percentiles as JSON.
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.metrics.Snapshot()); err != nil {
			s.logger.Error("encode metrics", zap.Error(err))
		}
	})

	// POST /metrics/reset - clears counters for a fresh benchmark window.
	mux.HandleFunc("/metrics/reset", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		s.metrics.Reset()
		w.Write([]byte("metrics reset"))
	})

	s.logger.Info("debug http surface listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
