// Package debugapi implements the thin HTTP admin surface: a handful
// of net/http handlers reading directly off a state-query interface,
// with no independent state of its own, plus the single mutation hook
// (toggling lock_cursor_to_screen).
package debugapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/konflikt/konflikt/internal/model"
)

// State is the subset of supervisor state the debug surface reads and
// mutates. Implemented by the supervisor; kept narrow so this package
// never needs to know about layout/session/clipboard/engine directly.
type State interface {
	Layout() []model.Screen
	Peers() []model.Peer
	ClipboardText() string
	LogEntries() []model.LogEntry
	ToggleLockedToScreen() bool
}

// Server is the debug HTTP surface. It owns no goroutines of its own;
// callers wrap it in an *http.Server (or httptest.Server in tests).
type Server struct {
	state State
	log   *slog.Logger
	mux   *http.ServeMux
}

// New creates a debug API server reading from state.
func New(state State, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{state: state, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("/api/layout", s.handleLayout)
	s.mux.HandleFunc("/api/peers", s.handlePeers)
	s.mux.HandleFunc("/api/clipboard", s.handleClipboard)
	s.mux.HandleFunc("/api/log", s.handleLog)
	s.mux.HandleFunc("/api/lock", s.handleLock)
	return s
}

// ServeHTTP makes Server itself an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("debugapi: encode response failed", "error", err)
	}
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	screens := s.state.Layout()
	if screens == nil {
		screens = []model.Screen{}
	}
	s.writeJSON(w, screens)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	peers := s.state.Peers()
	if peers == nil {
		peers = []model.Peer{}
	}
	s.writeJSON(w, peers)
}

func (s *Server) handleClipboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]string{"text": s.state.ClipboardText()})
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := s.state.LogEntries()
	if entries == nil {
		entries = []model.LogEntry{}
	}
	s.writeJSON(w, entries)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	locked := s.state.ToggleLockedToScreen()
	s.writeJSON(w, map[string]bool{"lockedToScreen": locked})
}
