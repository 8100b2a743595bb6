// Package httpsrv is the gateway's observability surface: a small HTTP
// server exposing /health and a Prometheus /metrics endpoint. There is no
// topic directory to list or stream over here - subscriptions are
// transport-level byte prefixes, not named entries - so deeper broker
// introspection goes through the admin API's BrokerStats command instead.
package httpsrv

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartikbazzad/edgegateway/internal/obslog"
)

// Server is the gateway's HTTP observability server.
type Server struct {
	log    *obslog.Logger
	server *http.Server
}

// NewServer builds an HTTP server listening on addr with readTimeout
// applied to incoming requests. WriteTimeout is left at zero since
// /metrics scrapes can legitimately take a while under load.
func NewServer(addr string, readTimeout time.Duration, log *obslog.Logger) *Server {
	if log == nil {
		log = obslog.Default()
	}
	s := &Server{log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: 0,
	}
	return s
}

// Start runs the HTTP server; it blocks until Stop is called or the server
// fails.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop closes the HTTP server immediately.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
