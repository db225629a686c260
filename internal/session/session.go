// Package session implements the Session Manager: handshake
// bookkeeping, the connection-handle/instance-id registry, and the
// registration/disconnect sequences that drive the Layout Manager.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/konflikt/konflikt/internal/layout"
	"github.com/konflikt/konflikt/internal/model"
	"github.com/konflikt/konflikt/internal/protocol"
)

// Transport is the subset of transport behaviour the session manager
// needs: sending a frame to one connection, broadcasting to all, and
// closing a superseded connection.
type Transport interface {
	Send(conn string, data []byte) error
	Close(conn string) error
	Broadcast(data []byte)
}

// Engine is the subset of engine.Engine the session manager consults:
// which client currently holds the virtual cursor, and the hook to run
// when that client disconnects.
type Engine interface {
	ActiveClient() string
	HandleActiveClientDisconnected(instanceID string)
}

// Manager tracks every connected peer and mediates between the wire
// protocol's handshake/registration messages and the Layout Manager. It
// is driven exclusively from the supervisor's main loop.
type Manager struct {
	mu sync.Mutex

	layout    *layout.Manager
	engine    Engine
	transport Transport
	log       *slog.Logger

	serverInstanceID string
	serverName       string
	version          string

	peers      map[string]*model.Peer // connection handle -> peer
	byInstance map[string]string      // instance id -> connection handle

	now func() time.Time
}

// New creates a session manager bound to the given layout, engine, and
// transport.
func New(lm *layout.Manager, eng Engine, transport Transport, log *slog.Logger, serverInstanceID, serverName, version string) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		layout:           lm,
		engine:           eng,
		transport:        transport,
		log:              log,
		serverInstanceID: serverInstanceID,
		serverName:       serverName,
		version:          version,
		peers:            make(map[string]*model.Peer),
		byInstance:       make(map[string]string),
		now:              time.Now,
	}
}

// HandleHandshakeRequest answers a handshake_request with
// handshake_response and marks the connection handshaken, but not yet
// registered (registration requires a subsequent client_registration).
func (m *Manager) HandleHandshakeRequest(conn string, req protocol.HandshakeRequest) {
	m.mu.Lock()
	peer, ok := m.peers[conn]
	if !ok {
		peer = &model.Peer{ConnectionHandle: conn, ConnectedAt: m.now()}
		m.peers[conn] = peer
	}
	peer.Handshaken = true
	m.mu.Unlock()

	resp := protocol.NewHandshakeResponse(true, m.serverInstanceID, m.serverName, m.version, nil, m.now().UnixMilli())
	data, err := protocol.Encode(resp)
	if err != nil {
		m.log.Error("session: encode handshake_response failed", "error", err)
		return
	}
	if err := m.transport.Send(conn, data); err != nil {
		m.log.Warn("session: send handshake_response failed", "conn", conn, "error", err)
	}
}

// HandleClientRegistration processes a client_registration: it is
// dropped if the connection never completed a handshake. A duplicate
// instance_id from a new connection replaces the previous peer, closing
// its connection.
func (m *Manager) HandleClientRegistration(conn string, reg protocol.ClientRegistration) {
	m.mu.Lock()
	peer, ok := m.peers[conn]
	if !ok || !peer.Handshaken {
		m.mu.Unlock()
		m.log.Warn("session: client_registration without handshake, dropping", "conn", conn)
		return
	}

	if prevConn, exists := m.byInstance[reg.InstanceID]; exists && prevConn != conn {
		m.evictLocked(prevConn)
	}

	peer.InstanceID = reg.InstanceID
	peer.DisplayName = reg.DisplayName
	peer.ScreenW = reg.ScreenWidth
	peer.ScreenH = reg.ScreenHeight
	m.byInstance[reg.InstanceID] = conn
	m.mu.Unlock()

	m.layout.RegisterClient(reg.InstanceID, reg.DisplayName, reg.MachineID, reg.ScreenWidth, reg.ScreenHeight)

	screen, _ := m.layout.Screen(reg.InstanceID)
	adj := m.layout.Adjacency(reg.InstanceID)
	assignment := protocol.NewLayoutAssignment(
		protocol.Position{X: screen.X, Y: screen.Y},
		toProtocolAdjacency(adj),
		toScreenInfos(m.layout.Layout()),
	)
	data, err := protocol.Encode(assignment)
	if err != nil {
		m.log.Error("session: encode layout_assignment failed", "error", err)
	} else if err := m.transport.Send(conn, data); err != nil {
		m.log.Warn("session: send layout_assignment failed", "conn", conn, "error", err)
	}

	m.broadcastLayoutUpdate()
	m.log.Info("session: client registered", "instanceId", reg.InstanceID, "conn", conn)
}

// HandleDisconnect removes the peer bound to conn, deactivating it
// first if it held the virtual cursor, and marking its screen offline.
func (m *Manager) HandleDisconnect(conn string) {
	m.mu.Lock()
	peer, ok := m.peers[conn]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.peers, conn)
	instanceID := peer.InstanceID
	if instanceID != "" && m.byInstance[instanceID] == conn {
		delete(m.byInstance, instanceID)
	}
	m.mu.Unlock()

	if instanceID == "" {
		return
	}
	if m.engine.ActiveClient() == instanceID {
		m.engine.HandleActiveClientDisconnected(instanceID)
	}
	m.layout.SetOnline(instanceID, false)
	m.log.Info("session: peer disconnected", "instanceId", instanceID, "conn", conn)
}

// evictLocked closes a superseded connection and removes its peer
// bookkeeping. Callers must hold m.mu.
func (m *Manager) evictLocked(conn string) {
	if old, ok := m.peers[conn]; ok {
		if old.InstanceID != "" {
			delete(m.byInstance, old.InstanceID)
		}
		delete(m.peers, conn)
	}
	if err := m.transport.Close(conn); err != nil {
		m.log.Warn("session: close superseded connection failed", "conn", conn, "error", err)
	}
}

// BroadcastLayoutUpdate re-sends the current layout to every peer. The
// layout manager calls back into the supervisor on every change, which
// invokes this.
func (m *Manager) BroadcastLayoutUpdate() { m.broadcastLayoutUpdate() }

func (m *Manager) broadcastLayoutUpdate() {
	update := protocol.NewLayoutUpdate(toScreenInfos(m.layout.Layout()), m.now().UnixMilli())
	data, err := protocol.Encode(update)
	if err != nil {
		m.log.Error("session: encode layout_update failed", "error", err)
		return
	}
	m.transport.Broadcast(data)
}

// Peers returns a snapshot of every connected peer, with Active
// computed against the engine's current virtual-cursor holder.
func (m *Manager) Peers() []model.Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := m.engine.ActiveClient()
	out := make([]model.Peer, 0, len(m.peers))
	for _, p := range m.peers {
		snap := *p
		snap.Active = snap.InstanceID != "" && snap.InstanceID == active
		out = append(out, snap)
	}
	return out
}

func toScreenInfos(screens []model.Screen) []protocol.ScreenInfo {
	out := make([]protocol.ScreenInfo, len(screens))
	for i, s := range screens {
		out[i] = protocol.ScreenInfo{
			InstanceID:  s.InstanceID,
			DisplayName: s.DisplayName,
			X:           s.X,
			Y:           s.Y,
			Width:       s.W,
			Height:      s.H,
			IsServer:    s.IsServer,
			Online:      s.Online,
		}
	}
	return out
}

func toProtocolAdjacency(a model.Adjacency) protocol.Adjacency {
	return protocol.Adjacency{Left: a.Left, Right: a.Right, Top: a.Top, Bottom: a.Bottom}
}
