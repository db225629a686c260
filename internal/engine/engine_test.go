package engine

import (
	"testing"
	"time"

	"github.com/konflikt/konflikt/internal/layout"
	"github.com/konflikt/konflikt/internal/model"
	"github.com/konflikt/konflikt/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	visible bool
	state   model.InputState
	warps   []model.InputState
}

func newFakeBackend() *fakeBackend { return &fakeBackend{visible: true} }

func (b *fakeBackend) HideCursor() error { b.visible = false; return nil }
func (b *fakeBackend) ShowCursor() error { b.visible = true; return nil }
func (b *fakeBackend) SendMouseEvent(event model.InputEvent) error {
	b.state = event.State
	b.warps = append(b.warps, event.State)
	return nil
}
func (b *fakeBackend) GetState() (model.InputState, error) { return b.state, nil }

type fakeBroadcaster struct {
	frames [][]byte
}

func (b *fakeBroadcaster) Broadcast(data []byte) { b.frames = append(b.frames, append([]byte(nil), data...)) }

// newTestEngine wires a server at (0,0,800x600) with a right-adjacent
// client at (800,0,800x600), both online, and a fake clock starting at
// a fixed instant so cooldown arithmetic is deterministic.
func newTestEngine(t *testing.T) (*Engine, *fakeBackend, *fakeBroadcaster, *layout.Manager, *time.Time) {
	t.Helper()
	lm := layout.New()
	lm.SetServerScreen("server", "Server", "machine-0", 800, 600)
	lm.RegisterClient("client-1", "Client One", "machine-1", 800, 600)

	backend := newFakeBackend()
	bc := &fakeBroadcaster{}
	e := New(lm, backend, bc, nil)
	e.Configure("server", model.Rect{X: 0, Y: 0, W: 800, H: 600})
	e.SetDisplays([]model.Display{{ID: "display-0", X: 0, Y: 0, W: 800, H: 600, IsPrimary: true}})

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }
	return e, backend, bc, lm, &clock
}

func TestHandleLocalMouseMoveActivatesAtRightEdge(t *testing.T) {
	e, backend, bc, _, _ := newTestEngine(t)

	e.HandleLocalMouseMove(799, 300)

	assert.Equal(t, StateRemote, e.State())
	assert.Equal(t, "client-1", e.ActiveClient())
	assert.False(t, backend.visible)
	require.Len(t, bc.frames, 1)

	decoded, err := protocol.Decode(bc.frames[0])
	require.NoError(t, err)
	ac, ok := decoded.(*protocol.ActivateClient)
	require.True(t, ok)
	assert.Equal(t, "client-1", ac.TargetInstanceID)
	assert.Equal(t, 1, ac.CursorX)
}

func TestHandleLocalMouseMoveIgnoredWhenNotAtEdge(t *testing.T) {
	e, _, bc, _, _ := newTestEngine(t)

	e.HandleLocalMouseMove(400, 300)

	assert.Equal(t, StateLocal, e.State())
	assert.Empty(t, bc.frames)
}

func TestHandleLocalMouseMoveIgnoredWhenLocked(t *testing.T) {
	e, _, bc, _, _ := newTestEngine(t)
	e.lockedToScreen = true

	e.HandleLocalMouseMove(799, 300)

	assert.Equal(t, StateLocal, e.State())
	assert.Empty(t, bc.frames)
}

func TestHandleLocalMouseMoveIgnoredWhenEdgeDisabled(t *testing.T) {
	e, _, bc, _, _ := newTestEngine(t)
	e.SetGlobalEdges(EdgeSettings{Left: true, Top: true, Bottom: true})

	e.HandleLocalMouseMove(799, 300)

	assert.Equal(t, StateLocal, e.State())
	assert.Empty(t, bc.frames)
}

// Cooldown boundary: 300ms since last deactivation does not transition,
// 600ms does.
func TestHandleLocalMouseMoveCooldownBoundary(t *testing.T) {
	e, _, _, _, clock := newTestEngine(t)
	e.lastDeactivation = *clock
	*clock = clock.Add(300 * time.Millisecond)

	e.HandleLocalMouseMove(799, 300)
	assert.Equal(t, StateLocal, e.State(), "300ms since deactivation must not transition")

	*clock = clock.Add(300 * time.Millisecond) // now 600ms total
	e.HandleLocalMouseMove(799, 300)
	assert.Equal(t, StateRemote, e.State(), "600ms since deactivation must transition")
}

func TestHandleLocalMouseMoveIgnoredWhenTargetOffline(t *testing.T) {
	e, _, bc, lm, _ := newTestEngine(t)
	lm.SetOnline("client-1", false)

	e.HandleLocalMouseMove(799, 300)

	assert.Equal(t, StateLocal, e.State())
	assert.Empty(t, bc.frames)
}

func TestActivateClientIsIdempotentForSameTarget(t *testing.T) {
	e, _, bc, _, _ := newTestEngine(t)

	e.HandleLocalMouseMove(799, 300)
	require.Equal(t, StateRemote, e.State())
	framesAfterFirst := len(bc.frames)

	target, _ := e.layout.Screen("client-1")
	e.activateClient(target, 5, 5)

	assert.Len(t, bc.frames, framesAfterFirst, "re-activating the already-active client must not re-broadcast")
}

func TestHandleRemoteMouseMoveOnlyWhenRemote(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	frame := e.HandleRemoteMouseMove(10, 10, 0, 0)
	assert.Nil(t, frame, "must be a no-op while Local")

	e.HandleLocalMouseMove(799, 300)
	frame = e.HandleRemoteMouseMove(10, 10, 0, 0)
	require.NotNil(t, frame)

	decoded, err := protocol.Decode(frame)
	require.NoError(t, err)
	ev, ok := decoded.(*protocol.InputEvent)
	require.True(t, ok)
	assert.Equal(t, "mouseMove", ev.EventType)
	assert.Equal(t, "server", ev.SourceInstanceID)
}

func TestHandleRemoteMouseMoveClampsToTargetBounds(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	e.HandleLocalMouseMove(799, 300) // lands at x=1, y=300 on client-1 (800x600)

	e.HandleRemoteMouseMove(-100, 0, 0, 0)

	assert.Equal(t, 0, e.vc.X, "virtual cursor must clamp to [0, w-1]")
}

func TestHandleRemoteButtonAndScrollCarryVirtualCursorPosition(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	e.HandleLocalMouseMove(799, 300)

	pressFrame := e.HandleRemoteButton(true, "left", 0, 1)
	require.NotNil(t, pressFrame)
	decoded, err := protocol.Decode(pressFrame)
	require.NoError(t, err)
	press := decoded.(*protocol.InputEvent)
	assert.Equal(t, "mousePress", press.EventType)
	assert.Equal(t, "left", press.EventData.Button)
	assert.Equal(t, e.vc.X, press.EventData.X)

	releaseFrame := e.HandleRemoteButton(false, "left", 0, 0)
	decoded, err = protocol.Decode(releaseFrame)
	require.NoError(t, err)
	assert.Equal(t, "mouseRelease", decoded.(*protocol.InputEvent).EventType)

	scrollFrame := e.HandleRemoteScroll(0, -3, 0, 0)
	decoded, err = protocol.Decode(scrollFrame)
	require.NoError(t, err)
	scroll := decoded.(*protocol.InputEvent)
	assert.Equal(t, "scroll", scroll.EventType)
	assert.Equal(t, -3, scroll.EventData.ScrollY)
}

func TestHandleRemoteKeyAppliesRemapAndIsNoopWhenLocal(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	e.SetKeyRemap(map[int]int{10: 20})

	assert.Nil(t, e.HandleRemoteKey(true, 10, "", 0, 0), "must be a no-op while Local")

	e.HandleLocalMouseMove(799, 300)
	frame := e.HandleRemoteKey(true, 10, "", 0, 0)
	require.NotNil(t, frame)
	decoded, err := protocol.Decode(frame)
	require.NoError(t, err)
	ev := decoded.(*protocol.InputEvent)
	assert.Equal(t, "keyPress", ev.EventType)
	assert.Equal(t, 20, ev.EventData.KeyCode)
}

func TestHandleDeactivationRequestIgnoresWrongInstance(t *testing.T) {
	e, backend, _, _, _ := newTestEngine(t)
	e.HandleLocalMouseMove(799, 300)

	e.HandleDeactivationRequest("someone-else")

	assert.Equal(t, StateRemote, e.State())
	assert.False(t, backend.visible)
}

func TestHandleDeactivationRequestRestoresLocalStateAndWarpsCursor(t *testing.T) {
	e, backend, _, _, clock := newTestEngine(t)
	e.HandleLocalMouseMove(799, 300)
	*clock = clock.Add(time.Second)

	e.HandleDeactivationRequest("client-1")

	assert.Equal(t, StateLocal, e.State())
	assert.Equal(t, "", e.ActiveClient())
	assert.True(t, backend.visible)
	require.Len(t, backend.warps, 1)
	assert.Equal(t, 799, backend.warps[0].X, "warp lands at the server's right edge")
	assert.Equal(t, *clock, e.lastDeactivation)
}

func TestHandleActiveClientDisconnectedOnlyMattersWhenThatClientIsActive(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	e.HandleLocalMouseMove(799, 300)

	e.HandleActiveClientDisconnected("not-the-active-one")
	assert.Equal(t, StateRemote, e.State())

	e.HandleActiveClientDisconnected("client-1")
	assert.Equal(t, StateLocal, e.State())
}

func TestHandleLockHotkeyTogglesWithoutForcingDeactivation(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	e.SetLockHotkey(0x91)

	assert.False(t, e.HandleLockHotkey(0x41), "unrelated keycode is not swallowed")
	assert.False(t, e.LockedToScreen())

	assert.True(t, e.HandleLockHotkey(0x91))
	assert.True(t, e.LockedToScreen())

	e.HandleLocalMouseMove(799, 300)
	assert.Equal(t, StateLocal, e.State(), "lock blocks the local->remote transition")

	e.lockedToScreen = false
	e.HandleLocalMouseMove(799, 300)
	require.Equal(t, StateRemote, e.State())

	// Toggling the lock again while already Remote does not force a
	// deactivation (documented open-question decision, preserved as-is).
	assert.True(t, e.HandleLockHotkey(0x91))
	assert.Equal(t, StateRemote, e.State())
}

func TestToggleLockedToScreenFlipsStateDirectly(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	assert.False(t, e.LockedToScreen())

	assert.True(t, e.ToggleLockedToScreen())
	assert.True(t, e.LockedToScreen())

	assert.False(t, e.ToggleLockedToScreen())
	assert.False(t, e.LockedToScreen())
}

func TestPerDisplayEdgeOverrideShadowsGlobalSettings(t *testing.T) {
	e, _, bc, _, _ := newTestEngine(t)
	e.SetGlobalEdges(AllEdgesEnabled())
	e.SetDisplayEdges("display-0", EdgeSettings{Left: true, Top: true, Bottom: true})

	e.HandleLocalMouseMove(799, 300)

	assert.Equal(t, StateLocal, e.State(), "display override disables the right edge")
	assert.Empty(t, bc.frames)
}
