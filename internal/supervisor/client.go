package supervisor

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/konflikt/konflikt/internal/clipboard"
	"github.com/konflikt/konflikt/internal/config"
	"github.com/konflikt/konflikt/internal/discovery"
	"github.com/konflikt/konflikt/internal/inputbackend"
	"github.com/konflikt/konflikt/internal/layout"
	"github.com/konflikt/konflikt/internal/model"
	"github.com/konflikt/konflikt/internal/protocol"
	"github.com/konflikt/konflikt/internal/transport"
)

// deactivationRequestRateLimit caps how often the client re-sends
// deactivation_request on repeated left-edge crossings while active.
const deactivationRequestRateLimit = 500 * time.Millisecond

// clientState is the client role's local mirror of activation and
// layout assignment. There is no Edge/Cursor Engine on the client:
// the server is the sole authority, and the client only replays the
// events it is sent and reports left-edge exits back to it.
type clientState struct {
	mu sync.Mutex

	instanceID  string
	displayName string

	active     bool
	lastX      int
	lastY      int
	position   protocol.Position
	adjacency  protocol.Adjacency
	fullLayout []protocol.ScreenInfo

	lastDeactivationRequestAt time.Time

	now func() time.Time
}

func (cs *clientState) selfPeer() model.Peer {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return model.Peer{
		InstanceID:  cs.instanceID,
		DisplayName: cs.displayName,
		Active:      cs.active,
		Handshaken:  true,
	}
}

// NewClient wires the client-role Supervisor: a dialer, local backend,
// and clipboard replicator. There is no Session Manager or Layout
// Manager mutation on this side; the client only mirrors what the
// server assigns it.
func NewClient(cfg *config.Settings, backend inputbackend.Backend) (*Supervisor, error) {
	ring := model.NewLogRing(logRingCapacity)
	log := newLogger(cfg.Verbose, ring)

	if ok := backend.Initialize(log); !ok {
		return nil, fmt.Errorf("supervisor: input backend initialization failed")
	}

	var tlsConfig *tls.Config
	if cfg.TLS {
		tlsConfig = transport.ClientTLSConfig(cfg.InsecureTLS)
	}

	var cl *transport.Client
	var scanner *discovery.Scanner
	if cfg.Server != "" {
		url := fmt.Sprintf("%s://%s:%d/ws", dialScheme(cfg.TLS), cfg.Server, cfg.Port)
		cl = transport.NewClient(url, tlsConfig, log)
	} else {
		scanner = discovery.NewScanner(cfg.InstanceID, log)
	}

	cs := &clientState{instanceID: cfg.InstanceID, displayName: cfg.Name, now: time.Now}
	clip := clipboard.New(backend, noopBroadcaster{}, log, cfg.InstanceID)

	s := &Supervisor{
		cfg:                cfg,
		log:                log,
		backend:            backend,
		logRing:            ring,
		layout:             layout.New(),
		clipboard:          clip,
		client:             cl,
		scanner:            scanner,
		clientState:        cs,
		clientDisconnected: make(chan struct{}, 1),
		incoming:           make(chan incomingFrame, 256),
		shutdown:           make(chan struct{}),
	}
	return s, nil
}

// noopBroadcaster satisfies clipboard.Broadcaster for the client role,
// where outgoing clipboard_sync frames go out over the single server
// connection (handled directly in runClientDial), not a fan-out
// broadcast.
type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(data []byte) {}

// RunClient dials (or discovers, then dials) the server, replays
// server-driven input events through the local backend, and maintains
// the reconnect policy until ctx is cancelled or Shutdown is called.
func (s *Supervisor) RunClient(ctx context.Context) error {
	if err := s.backend.StartListening(); err != nil {
		return wrapErr("start input capture", err)
	}
	defer s.backend.StopListening()

	if s.scanner != nil {
		s.scanner.Start()
		defer s.scanner.Stop()
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	connected := false
	var reconnectAt time.Time

	for {
		var events <-chan discovery.Event
		if s.scanner != nil {
			events = s.scanner.Events()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdown:
			return nil
		case <-ticker.C:
			s.clipboard.Poll()
			if !connected && s.client != nil && time.Now().After(reconnectAt) {
				if err := s.dialOnce(ctx); err != nil {
					s.log.Warn("supervisor: dial failed", "error", err)
					s.client.Reconnect.Attempts++
					if s.client.Reconnect.Attempts > model.MaxReconnectAttempts {
						return wrapErr("reconnect", fmt.Errorf("exceeded %d attempts", model.MaxReconnectAttempts))
					}
					reconnectAt = time.Now().Add(s.client.Reconnect.NextDelay())
				} else {
					connected = true
				}
			}
			if s.scanner != nil && s.client == nil {
				if s.tryAutoConnect(ctx) {
					connected = true
				}
			}
		case frame := <-s.incoming:
			s.dispatchClientFrame(frame)
		case ev, ok := <-events:
			if !ok {
				break
			}
			switch ev.Kind {
			case discovery.PeerUpserted:
				s.log.Debug("supervisor: discovered peer", "instanceId", ev.Peer.InstanceID, "host", ev.Peer.Host)
			case discovery.PeerRemoved:
				s.log.Debug("supervisor: peer no longer advertised", "instanceId", ev.Peer.InstanceID)
			}
		case <-s.clientDisconnected:
			connected = false
			if delay, ok := s.handleClientDisconnected(); ok {
				reconnectAt = time.Now().Add(delay)
			}
		}
	}
}

// handleClientDisconnected computes the next reconnect delay from
// whatever graceful server_shutdown context dispatchClientFrame
// recorded (or the abrupt-disconnect default, if none), then clears
// that context now that it has been consumed. Reported by ok=false if
// there is no client to reconnect.
func (s *Supervisor) handleClientDisconnected() (delay time.Duration, ok bool) {
	if s.client == nil {
		return 0, false
	}
	delay = s.client.Reconnect.NextDelay()
	s.client.Reconnect.ExpectingReconnect = false
	s.client.Reconnect.ExpectedDelayMS = 0
	return delay, true
}

func (s *Supervisor) dialOnce(ctx context.Context) error {
	s.client.OnMessage(func(data []byte) {
		select {
		case s.incoming <- incomingFrame{data: data}:
		default:
			s.log.Warn("supervisor: incoming frame queue full, dropping frame")
		}
	})
	s.client.OnDisconnect(func(err error) {
		// ExpectingReconnect/ExpectedDelayMS, if a prior server_shutdown
		// frame set them, are read and cleared by RunClient's select loop
		// when it receives this signal, not here — clearing them in this
		// callback would race the main loop's read of them.
		select {
		case s.clientDisconnected <- struct{}{}:
		default:
		}
	})

	if err := s.client.Dial(ctx); err != nil {
		return err
	}

	desktop, err := s.backend.GetDesktop()
	if err != nil {
		return wrapErr("query desktop geometry", err)
	}
	req := protocol.NewHandshakeRequest(s.cfg.InstanceID, s.cfg.Name, Version, nil, time.Now().UnixMilli())
	if data, err := protocol.Encode(req); err == nil {
		_ = s.client.Send(data)
	}
	reg := protocol.NewClientRegistration(s.cfg.InstanceID, s.cfg.Name, s.cfg.InstanceID, desktop.Width, desktop.Height)
	if data, err := protocol.Encode(reg); err == nil {
		_ = s.client.Send(data)
	}
	return nil
}

// tryAutoConnect dials the first discovered peer and reports whether
// it succeeded, so RunClient's loop can mark itself connected and
// avoid re-dialing the same *transport.Client on the next tick.
func (s *Supervisor) tryAutoConnect(ctx context.Context) bool {
	peers := s.scanner.Peers()
	if len(peers) == 0 {
		return false
	}
	candidate := peers[0]
	url := fmt.Sprintf("%s://%s:%d/ws", dialScheme(s.cfg.TLS), candidate.Host, candidate.Port)
	var tlsConfig *tls.Config
	if s.cfg.TLS {
		tlsConfig = transport.ClientTLSConfig(s.cfg.InsecureTLS)
	}
	s.client = transport.NewClient(url, tlsConfig, s.log)
	if err := s.dialOnce(ctx); err != nil {
		s.log.Warn("supervisor: auto-connect failed", "peer", candidate.InstanceID, "error", err)
		s.client = nil
		return false
	}
	return true
}

func (s *Supervisor) dispatchClientFrame(frame incomingFrame) {
	msg, err := protocol.Decode(frame.data)
	if err != nil {
		s.log.Warn("supervisor: decode frame failed", "error", err)
		return
	}

	switch m := msg.(type) {
	case *protocol.HandshakeResponse:
		// Accepted is implicit in continuing to receive frames; nothing
		// further to do here.
	case *protocol.LayoutAssignment:
		s.clientState.mu.Lock()
		s.clientState.position = m.Position
		s.clientState.adjacency = m.Adjacency
		s.clientState.fullLayout = m.FullLayout
		s.clientState.mu.Unlock()
	case *protocol.LayoutUpdate:
		s.clientState.mu.Lock()
		s.clientState.fullLayout = m.Screens
		s.clientState.mu.Unlock()
	case *protocol.ActivateClient:
		s.handleActivateClient(*m)
	case *protocol.InputEvent:
		s.replayInputEvent(*m)
	case *protocol.ClipboardSync:
		s.clipboard.HandleIncoming(*m)
	case *protocol.ServerShutdown:
		s.client.Reconnect.ExpectingReconnect = true
		s.client.Reconnect.ExpectedDelayMS = m.DelayMS
		s.log.Info("supervisor: server announced shutdown", "delayMs", m.DelayMS)
	case *protocol.Heartbeat:
	default:
		s.log.Warn("supervisor: unhandled frame type")
	}
}

func (s *Supervisor) handleActivateClient(m protocol.ActivateClient) {
	if m.TargetInstanceID != s.cfg.InstanceID {
		return
	}
	s.clientState.mu.Lock()
	s.clientState.active = true
	s.clientState.lastX = m.CursorX
	s.clientState.lastY = m.CursorY
	s.clientState.mu.Unlock()

	_ = s.backend.SendMouseEvent(model.InputEvent{
		Kind:      model.EventMouseMove,
		Timestamp: time.Now().UnixMilli(),
		State:     model.InputState{X: m.CursorX, Y: m.CursorY},
	})
}

// replayInputEvent applies a server-originated input_event through the
// local backend while this client is active, then checks the
// left-edge-exit condition that triggers deactivation_request.
func (s *Supervisor) replayInputEvent(m protocol.InputEvent) {
	if m.SourceInstanceID == s.cfg.InstanceID {
		return
	}
	s.clientState.mu.Lock()
	active := s.clientState.active
	s.clientState.mu.Unlock()
	if !active {
		return
	}

	switch m.EventType {
	case "mouseMove":
		x, y := m.EventData.X, m.EventData.Y
		s.clientState.mu.Lock()
		s.clientState.lastX, s.clientState.lastY = x, y
		s.clientState.mu.Unlock()
		_ = s.backend.SendMouseEvent(model.InputEvent{
			Kind: model.EventMouseMove, Timestamp: m.EventData.Timestamp,
			State: model.InputState{X: x, Y: y, DX: m.EventData.DX, DY: m.EventData.DY},
		})
		if x <= 1 && m.EventData.DX < 0 {
			s.sendDeactivationRequest()
		}
	case "mousePress", "mouseRelease":
		kind := model.EventMousePress
		if m.EventType == "mouseRelease" {
			kind = model.EventMouseRelease
		}
		_ = s.backend.SendMouseEvent(model.InputEvent{
			Kind: kind, Timestamp: m.EventData.Timestamp,
			Button: model.MouseButton(m.EventData.Button),
		})
	case "scroll":
		_ = s.backend.SendMouseEvent(model.InputEvent{
			Kind: model.EventMouseScroll, Timestamp: m.EventData.Timestamp,
			State: model.InputState{ScrollX: m.EventData.ScrollX, ScrollY: m.EventData.ScrollY},
		})
	case "keyPress", "keyRelease":
		kind := model.EventKeyPress
		if m.EventType == "keyRelease" {
			kind = model.EventKeyRelease
		}
		_ = s.backend.SendKeyEvent(model.InputEvent{
			Kind: kind, Timestamp: m.EventData.Timestamp,
			KeyCode: m.EventData.KeyCode, Text: m.EventData.Text,
		})
	}
}

func (s *Supervisor) sendDeactivationRequest() {
	s.clientState.mu.Lock()
	now := s.clientState.now()
	if now.Sub(s.clientState.lastDeactivationRequestAt) < deactivationRequestRateLimit {
		s.clientState.mu.Unlock()
		return
	}
	s.clientState.lastDeactivationRequestAt = now
	s.clientState.active = false
	s.clientState.mu.Unlock()

	req := protocol.NewDeactivationRequest(s.cfg.InstanceID, now.UnixMilli())
	if data, err := protocol.Encode(req); err == nil {
		_ = s.client.Send(data)
	}
}
