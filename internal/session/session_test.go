package session

import (
	"testing"

	"github.com/konflikt/konflikt/internal/layout"
	"github.com/konflikt/konflikt/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	sent      map[string][][]byte
	broadcast [][]byte
	closed    []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][][]byte)}
}

func (t *fakeTransport) Send(conn string, data []byte) error {
	t.sent[conn] = append(t.sent[conn], data)
	return nil
}
func (t *fakeTransport) Close(conn string) error { t.closed = append(t.closed, conn); return nil }
func (t *fakeTransport) Broadcast(data []byte)   { t.broadcast = append(t.broadcast, data) }

type fakeEngine struct {
	active       string
	disconnected []string
}

func (e *fakeEngine) ActiveClient() string { return e.active }
func (e *fakeEngine) HandleActiveClientDisconnected(instanceID string) {
	e.disconnected = append(e.disconnected, instanceID)
}

func newTestManager(t *testing.T) (*Manager, *fakeTransport, *fakeEngine, *layout.Manager) {
	t.Helper()
	lm := layout.New()
	lm.SetServerScreen("server", "Server", "machine-0", 800, 600)
	tr := newFakeTransport()
	eng := &fakeEngine{}
	m := New(lm, eng, tr, nil, "server", "Server", "1.0")
	return m, tr, eng, lm
}

func TestHandshakeThenRegistrationAssignsLayoutAndBroadcasts(t *testing.T) {
	m, tr, _, lm := newTestManager(t)

	m.HandleHandshakeRequest("conn-1", protocol.HandshakeRequest{InstanceID: "client-1"})
	require.Len(t, tr.sent["conn-1"], 1)
	decoded, err := protocol.Decode(tr.sent["conn-1"][0])
	require.NoError(t, err)
	resp := decoded.(*protocol.HandshakeResponse)
	assert.True(t, resp.Accepted)

	m.HandleClientRegistration("conn-1", protocol.ClientRegistration{
		InstanceID: "client-1", DisplayName: "Client One", MachineID: "machine-1",
		ScreenWidth: 800, ScreenHeight: 600,
	})

	screen, ok := lm.Screen("client-1")
	require.True(t, ok)
	assert.Equal(t, 800, screen.X, "registered right of the server")

	require.Len(t, tr.sent["conn-1"], 2, "handshake_response then layout_assignment")
	decoded, err = protocol.Decode(tr.sent["conn-1"][1])
	require.NoError(t, err)
	assignment := decoded.(*protocol.LayoutAssignment)
	assert.Equal(t, 800, assignment.Position.X)
	assert.Equal(t, "server", assignment.Adjacency.Left)
	require.Len(t, assignment.FullLayout, 2)

	require.Len(t, tr.broadcast, 1)
	decoded, err = protocol.Decode(tr.broadcast[0])
	require.NoError(t, err)
	update := decoded.(*protocol.LayoutUpdate)
	assert.Len(t, update.Screens, 2)
}

func TestClientRegistrationWithoutHandshakeIsDropped(t *testing.T) {
	m, tr, _, lm := newTestManager(t)

	m.HandleClientRegistration("conn-1", protocol.ClientRegistration{
		InstanceID: "client-1", ScreenWidth: 800, ScreenHeight: 600,
	})

	_, ok := lm.Screen("client-1")
	assert.False(t, ok)
	assert.Empty(t, tr.sent["conn-1"])
	assert.Empty(t, tr.broadcast)
}

func TestDuplicateInstanceIDReplacesPreviousConnection(t *testing.T) {
	m, tr, _, lm := newTestManager(t)

	m.HandleHandshakeRequest("conn-1", protocol.HandshakeRequest{InstanceID: "client-1"})
	m.HandleClientRegistration("conn-1", protocol.ClientRegistration{
		InstanceID: "client-1", ScreenWidth: 800, ScreenHeight: 600,
	})

	m.HandleHandshakeRequest("conn-2", protocol.HandshakeRequest{InstanceID: "client-1"})
	m.HandleClientRegistration("conn-2", protocol.ClientRegistration{
		InstanceID: "client-1", ScreenWidth: 800, ScreenHeight: 600,
	})

	assert.Contains(t, tr.closed, "conn-1", "superseded connection must be closed")
	peers := m.Peers()
	require.Len(t, peers, 1, "only the new connection's peer remains")
	assert.Equal(t, "client-1", peers[0].InstanceID)

	_, ok := lm.Screen("client-1")
	assert.True(t, ok)
}

func TestDisconnectWhileActiveInvokesEngineAndMarksOffline(t *testing.T) {
	m, _, eng, lm := newTestManager(t)
	m.HandleHandshakeRequest("conn-1", protocol.HandshakeRequest{InstanceID: "client-1"})
	m.HandleClientRegistration("conn-1", protocol.ClientRegistration{
		InstanceID: "client-1", ScreenWidth: 800, ScreenHeight: 600,
	})
	eng.active = "client-1"

	m.HandleDisconnect("conn-1")

	assert.Equal(t, []string{"client-1"}, eng.disconnected)
	screen, ok := lm.Screen("client-1")
	require.True(t, ok)
	assert.False(t, screen.Online)
	assert.Empty(t, m.Peers())
}

func TestDisconnectWhileInactiveDoesNotInvokeEngine(t *testing.T) {
	m, _, eng, _ := newTestManager(t)
	m.HandleHandshakeRequest("conn-1", protocol.HandshakeRequest{InstanceID: "client-1"})
	m.HandleClientRegistration("conn-1", protocol.ClientRegistration{
		InstanceID: "client-1", ScreenWidth: 800, ScreenHeight: 600,
	})
	eng.active = "someone-else"

	m.HandleDisconnect("conn-1")

	assert.Empty(t, eng.disconnected)
}

func TestDisconnectOfUnknownConnectionIsNoop(t *testing.T) {
	m, _, eng, _ := newTestManager(t)
	m.HandleDisconnect("never-seen")
	assert.Empty(t, eng.disconnected)
}

func TestPeersReflectsActiveClient(t *testing.T) {
	m, _, eng, _ := newTestManager(t)
	m.HandleHandshakeRequest("conn-1", protocol.HandshakeRequest{InstanceID: "client-1"})
	m.HandleClientRegistration("conn-1", protocol.ClientRegistration{
		InstanceID: "client-1", ScreenWidth: 800, ScreenHeight: 600,
	})

	peers := m.Peers()
	require.Len(t, peers, 1)
	assert.False(t, peers[0].Active)

	eng.active = "client-1"
	peers = m.Peers()
	require.Len(t, peers, 1)
	assert.True(t, peers[0].Active)
}
