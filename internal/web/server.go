// Package web provides the HTTP status and operator command server for the
// dpm-controller daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ValorenceCLE/dpm-controller/internal/control"
	"github.com/ValorenceCLE/dpm-controller/internal/metrics"
	"github.com/ValorenceCLE/dpm-controller/internal/relay"
	"github.com/ValorenceCLE/dpm-controller/internal/status"
)

// Commander applies an operator command to a relay. Implemented by
// control.Loop.
type Commander interface {
	Command(ctx context.Context, relayID string, cmd relay.Command) error
}

// Server serves the status page, the Prometheus endpoint and the operator
// command endpoints.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commander  Commander
}

// New creates a Server that reads state from the given tracker and forwards
// operator commands to the given commander.
func New(addr string, tracker *status.Tracker, commander Commander) *Server {
	s := &Server{tracker: tracker, commander: commander}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/relays/", s.handleCommand)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatJSON(snap))
}

// handleCommand serves POST /relays/{id}/{on|off|pulse}.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "relays" || parts[1] == "" {
		http.NotFound(w, r)
		return
	}
	relayID := parts[1]

	cmd, err := relay.ParseCommand(parts[2])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.commander.Command(r.Context(), relayID, cmd)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.Write(formatCommandResult(relayID, cmd))
	case errors.Is(err, control.ErrUnknownRelay):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, control.ErrRelayDisabled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, control.ErrUnknownCommand):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
