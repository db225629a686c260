package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/konflikt/konflikt/internal/clipboard"
	"github.com/konflikt/konflikt/internal/config"
	"github.com/konflikt/konflikt/internal/debugapi"
	"github.com/konflikt/konflikt/internal/discovery"
	"github.com/konflikt/konflikt/internal/engine"
	"github.com/konflikt/konflikt/internal/inputbackend"
	"github.com/konflikt/konflikt/internal/layout"
	"github.com/konflikt/konflikt/internal/model"
	"github.com/konflikt/konflikt/internal/protocol"
	"github.com/konflikt/konflikt/internal/session"
	"github.com/konflikt/konflikt/internal/transport"
)

// NewServer wires the server-role Supervisor: layout, engine, session,
// clipboard, and the WebSocket/debug HTTP listener, all bound to the
// server's own input backend.
func NewServer(cfg *config.Settings, backend inputbackend.Backend) (*Supervisor, error) {
	ring := model.NewLogRing(logRingCapacity)
	log := newLogger(cfg.Verbose, ring)

	if ok := backend.Initialize(log); !ok {
		return nil, fmt.Errorf("supervisor: input backend initialization failed")
	}

	desktop, err := backend.GetDesktop()
	if err != nil {
		return nil, wrapErr("query desktop geometry", err)
	}

	srv := transport.NewServer(log)
	lm := layout.New()
	eng := engine.New(lm, backend, srv, log)
	sess := session.New(lm, eng, srv, log, cfg.InstanceID, cfg.Name, Version)
	clip := clipboard.New(backend, srv, log, cfg.InstanceID)

	lm.SetServerScreen(cfg.InstanceID, cfg.Name, cfg.InstanceID, desktop.Width, desktop.Height)
	eng.Configure(cfg.InstanceID, model.Rect{W: desktop.Width, H: desktop.Height})
	eng.SetGlobalEdges(cfg.GlobalEdges)
	for id, edges := range cfg.DisplayEdges {
		eng.SetDisplayEdges(id, edges)
	}
	eng.SetDisplays(desktop.Displays)
	eng.SetKeyRemap(cfg.KeyRemap)
	eng.SetLockHotkey(cfg.LockCursorHotkey)

	lm.OnChange(func([]model.Screen) { sess.BroadcastLayoutUpdate() })

	s := &Supervisor{
		cfg:         cfg,
		log:         log,
		backend:     backend,
		logRing:     ring,
		layout:      lm,
		engine:      eng,
		clipboard:   clip,
		session:     sess,
		server:      srv,
		incoming:    make(chan incomingFrame, 256),
		disconnects: make(chan string, 256),
		shutdown:    make(chan struct{}),
	}

	srv.OnMessage(func(conn string, data []byte) {
		select {
		case s.incoming <- incomingFrame{conn: conn, data: data}:
		default:
			log.Warn("supervisor: incoming frame queue full, dropping frame", "conn", conn)
		}
	})
	// Posted to the main loop rather than calling sess.HandleDisconnect
	// here directly: this callback runs on the transport's per-connection
	// read-pump goroutine, and HandleDisconnect reaches into the engine
	// and layout manager, neither of which tolerate concurrent access
	// from outside the main loop.
	srv.OnDisconnect(func(conn string) {
		select {
		case s.disconnects <- conn:
		default:
			log.Warn("supervisor: disconnect queue full, dropping disconnect notice", "conn", conn)
		}
	})

	backend.OnEvent(s.handleLocalInputEvent)

	if registrar, err := discovery.Register(cfg.InstanceID, cfg.Name, cfg.Port); err != nil {
		log.Warn("supervisor: mDNS registration failed", "error", err)
	} else {
		s.registrar = registrar
	}

	return s, nil
}

// handleLocalInputEvent is the input backend's capture-thread callback,
// routing captured local events into the engine. While Local, only
// mouse-move (edge detection) and the lock hotkey matter; once a
// remote client is active, every captured event becomes an
// input_event broadcast to that client instead, exactly as
// activateClient broadcasts activate_client.
func (s *Supervisor) handleLocalInputEvent(event model.InputEvent) {
	switch event.Kind {
	case model.EventMouseMove:
		if s.engine.State() == engine.StateRemote {
			s.broadcastFrame(s.engine.HandleRemoteMouseMove(event.State.DX, event.State.DY, event.State.KeyboardModifiers, event.State.MouseButtons))
			return
		}
		s.engine.HandleLocalMouseMove(event.State.X, event.State.Y)
	case model.EventMousePress, model.EventMouseRelease:
		if s.engine.State() != engine.StateRemote {
			return
		}
		press := event.Kind == model.EventMousePress
		s.broadcastFrame(s.engine.HandleRemoteButton(press, string(event.Button), event.State.KeyboardModifiers, event.State.MouseButtons))
	case model.EventMouseScroll:
		if s.engine.State() != engine.StateRemote {
			return
		}
		s.broadcastFrame(s.engine.HandleRemoteScroll(event.State.ScrollX, event.State.ScrollY, event.State.KeyboardModifiers, event.State.MouseButtons))
	case model.EventKeyPress:
		if s.engine.HandleLockHotkey(event.KeyCode) {
			return
		}
		if s.engine.State() != engine.StateRemote {
			return
		}
		s.broadcastFrame(s.engine.HandleRemoteKey(true, event.KeyCode, event.Text, event.State.KeyboardModifiers, event.State.MouseButtons))
	case model.EventKeyRelease:
		if s.engine.State() != engine.StateRemote {
			return
		}
		s.broadcastFrame(s.engine.HandleRemoteKey(false, event.KeyCode, event.Text, event.State.KeyboardModifiers, event.State.MouseButtons))
	}
}

// broadcastFrame sends a non-nil encoded frame to every connected
// peer. HandleRemote* return nil both when the engine isn't in
// StateRemote and on an encode failure it has already logged, so a nil
// frame here is never itself an error.
func (s *Supervisor) broadcastFrame(frame []byte) {
	if frame == nil {
		return
	}
	s.server.Broadcast(frame)
}

// RunServer starts the WebSocket/debug HTTP listener and runs the main
// loop until ctx is cancelled or Shutdown is called.
func (s *Supervisor) RunServer(ctx context.Context) error {
	if err := s.backend.StartListening(); err != nil {
		return wrapErr("start input capture", err)
	}
	defer s.backend.StopListening()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.server.HandleUpgrade)
	mux.Handle("/api/", debugapi.New(s, s.log))

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.Port), Handler: mux}
	if s.cfg.TLS {
		tlsConfig, err := transport.LoadServerTLSConfig(s.cfg.TLSCert, s.cfg.TLSKey, []byte(s.cfg.TLSPassphrase))
		if err != nil {
			return wrapErr("load TLS config", err)
		}
		httpSrv.TLSConfig = tlsConfig
	}

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS {
			err = httpSrv.ListenAndServeTLS("", "")
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	defer func() {
		if s.registrar != nil {
			s.registrar.Shutdown()
		}
		s.broadcastShutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdown:
			return nil
		case err := <-serveErr:
			return wrapErr("HTTP listener", err)
		case frame := <-s.incoming:
			s.dispatchServerFrame(frame)
		case conn := <-s.disconnects:
			s.session.HandleDisconnect(conn)
		case <-ticker.C:
			s.clipboard.Poll()
		}
	}
}

// shutdownBroadcastDelayMS is the delay_ms advertised in the
// server_shutdown frame: how long the server tells clients to wait
// before their first reconnect attempt. shutdownFlushGrace is how long
// RunServer itself waits after broadcasting before it actually closes
// the listener, so the frame has time to reach clients over the open
// sockets instead of racing httpSrv.Shutdown.
const (
	shutdownBroadcastDelayMS = 500
	shutdownFlushGrace       = 200 * time.Millisecond
)

// broadcastShutdown announces a graceful shutdown to every connected
// client before the listener closes, per the reconnect-delay policy in
// model.ReconnectState.NextDelay.
func (s *Supervisor) broadcastShutdown() {
	msg := protocol.NewServerShutdown("server_shutdown", shutdownBroadcastDelayMS, time.Now().UnixMilli())
	data, err := protocol.Encode(msg)
	if err != nil {
		s.log.Error("supervisor: encode server_shutdown failed", "error", err)
		return
	}
	s.server.Broadcast(data)
	time.Sleep(shutdownFlushGrace)
}

func (s *Supervisor) dispatchServerFrame(frame incomingFrame) {
	msg, err := protocol.Decode(frame.data)
	if err != nil {
		s.log.Warn("supervisor: decode frame failed", "conn", frame.conn, "error", err)
		return
	}

	switch m := msg.(type) {
	case *protocol.HandshakeRequest:
		s.session.HandleHandshakeRequest(frame.conn, *m)
	case *protocol.ClientRegistration:
		s.session.HandleClientRegistration(frame.conn, *m)
	case *protocol.DeactivationRequest:
		s.engine.HandleDeactivationRequest(m.InstanceID)
	case *protocol.InputEvent:
		s.applyRemoteInputEvent(*m)
	case *protocol.ClipboardSync:
		s.clipboard.HandleIncoming(*m)
	case *protocol.Heartbeat:
		// liveness only, no action required.
	default:
		s.log.Warn("supervisor: unhandled frame type", "conn", frame.conn)
	}
}

// applyRemoteInputEvent is reached only if a client ever echoes an
// input_event back to the server (it should not under normal
// operation, since the server is the one synthesizing these); logged
// and dropped as a protocol error rather than replayed.
func (s *Supervisor) applyRemoteInputEvent(m protocol.InputEvent) {
	s.log.Warn("supervisor: received input_event on server side, dropping", "source", m.SourceInstanceID)
}

var _ slog.Handler = (*ringHandler)(nil)
