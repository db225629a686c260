// Package supervisor wires every core component together and runs
// Konflikt's single main loop: one goroutine owns the Layout Manager,
// the Edge/Cursor Engine, the Session Manager, and the Clipboard
// Replicator, exactly as spec'd ("core state owned by the main task").
// I/O adapters (the WebSocket transport's read pumps, mDNS scanning)
// run on their own goroutines and only ever reach the core state by
// posting onto the bounded channels the Supervisor drains here.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/konflikt/konflikt/internal/clipboard"
	"github.com/konflikt/konflikt/internal/config"
	"github.com/konflikt/konflikt/internal/discovery"
	"github.com/konflikt/konflikt/internal/engine"
	"github.com/konflikt/konflikt/internal/inputbackend"
	"github.com/konflikt/konflikt/internal/layout"
	"github.com/konflikt/konflikt/internal/model"
	"github.com/konflikt/konflikt/internal/session"
	"github.com/konflikt/konflikt/internal/transport"
)

// Version is the handshake/debug-surface version string.
const Version = "0.1.0"

// tickInterval is the main loop's wake cadence: at least every 10ms,
// per spec's concurrency model.
const tickInterval = 10 * time.Millisecond

// logRingCapacity is the debug log ring's retained entry count.
const logRingCapacity = 500

type incomingFrame struct {
	conn string
	data []byte
}

// Supervisor owns the core state and the one-shot shutdown signal. A
// single instance runs in either server or client role, selected at
// construction by NewServer or NewClient.
type Supervisor struct {
	cfg *config.Settings
	log *slog.Logger

	backend inputbackend.Backend
	logRing *model.LogRing

	layout    *layout.Manager
	engine    *engine.Engine
	clipboard *clipboard.Replicator

	// server-only
	session     *session.Manager
	server      *transport.Server
	registrar   *discovery.Registrar
	disconnects chan string

	// client-only
	client             *transport.Client
	scanner            *discovery.Scanner
	clientState        *clientState
	clientDisconnected chan struct{}

	incoming chan incomingFrame

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// ringHandler is a slog.Handler that also appends every record to the
// supervisor's bounded log ring, so the debug HTTP surface can serve
// the last 500 entries regardless of which slog handler (JSON or text)
// is writing to stderr.
type ringHandler struct {
	slog.Handler
	ring *model.LogRing
}

func newRingHandler(inner slog.Handler, ring *model.LogRing) *ringHandler {
	return &ringHandler{Handler: inner, ring: ring}
}

func (h *ringHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	h.ring.Add(model.LogEntry{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Fields:    fields,
	})
	return h.Handler.Handle(ctx, r)
}

func newLogger(verbose bool, ring *model.LogRing) *slog.Logger {
	var inner slog.Handler
	opts := &slog.HandlerOptions{}
	if verbose {
		inner = slog.NewTextHandler(os.Stderr, opts)
	} else {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(newRingHandler(inner, ring))
}

// Shutdown signals the main loop to stop. Safe to call more than once
// and from any goroutine.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Layout implements debugapi.State.
func (s *Supervisor) Layout() []model.Screen { return s.layout.Layout() }

// ClipboardText implements debugapi.State by reading straight off the
// local backend, the same value the clipboard poll loop would see.
func (s *Supervisor) ClipboardText() string {
	text, err := s.backend.GetClipboardText("")
	if err != nil {
		return ""
	}
	return text
}

// LogEntries implements debugapi.State.
func (s *Supervisor) LogEntries() []model.LogEntry { return s.logRing.Snapshot() }

// ToggleLockedToScreen implements debugapi.State. lock_cursor_to_screen
// is a Local-state-only concept (spec's engine state table); a client
// role has no engine and reports false.
func (s *Supervisor) ToggleLockedToScreen() bool {
	if s.engine == nil {
		return false
	}
	return s.engine.ToggleLockedToScreen()
}

// Peers implements debugapi.State. In client role there is no session
// registry, so it reports a single synthetic peer describing this
// client's own connection state.
func (s *Supervisor) Peers() []model.Peer {
	if s.session != nil {
		return s.session.Peers()
	}
	if s.clientState == nil {
		return nil
	}
	return []model.Peer{s.clientState.selfPeer()}
}

func dialScheme(useTLS bool) string {
	if useTLS {
		return "wss"
	}
	return "ws"
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("supervisor: %s: %w", op, err)
}
