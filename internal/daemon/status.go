package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/request"
)

// StatusResponse is the body of GET /requests.
type StatusResponse struct {
	Requests []request.Request `json:"requests"`
	Queued   int               `json:"queued"`
}

// StatusServer serves health, in-flight requests and metrics over HTTP. It is
// meant to listen on localhost only.
type StatusServer struct {
	daemon  *Daemon
	metrics *Metrics
	srv     *http.Server
}

// NewStatusServer creates a status server for d. metrics may be nil, in which
// case /metrics is not served.
func NewStatusServer(d *Daemon, metrics *Metrics) *StatusServer {
	s := &StatusServer{daemon: d, metrics: metrics}
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          log.New(clog.Writer(clog.LevelWarn), "status: ", 0),
	}
	return s
}

// Router returns the HTTP routes.
func (s *StatusServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/requests", s.handleRequests).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *StatusServer) handleRequests(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Requests: s.daemon.Snapshot(),
		Queued:   s.daemon.gate.Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		clog.Debug("status: encode: %v", err)
	}
}

// Serve serves HTTP on ln until Shutdown.
func (s *StatusServer) Serve(ln net.Listener) error {
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
