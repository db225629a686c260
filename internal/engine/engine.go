// Package engine implements the server-side edge/cursor state machine:
// detecting edge crossings, activating and deactivating remote
// clients, and maintaining the off-screen virtual cursor.
//
// The state is an explicit two-case enum (Local / Remote{vc, active}),
// mutated only through the labelled transitions below, matching the
// original implementation's checkScreenTransition / activateClient /
// deactivateRemoteScreen trio translated out of its boolean-flag-sprawl
// style (mIsActiveInstance, mHasVirtualCursor, mActivatedClientId) into
// a single sum type, per the redesign notes.
package engine

import (
	"log/slog"
	"time"

	"github.com/konflikt/konflikt/internal/layout"
	"github.com/konflikt/konflikt/internal/model"
	"github.com/konflikt/konflikt/internal/protocol"
)

// State is the engine's two-case state.
type State int

const (
	StateLocal State = iota
	StateRemote
)

// EdgeSettings controls which of a screen's four edges trigger a
// transition. A display-specific override can shadow the global
// settings (spec 4.2's per-display edge override).
type EdgeSettings struct {
	Left, Right, Top, Bottom bool
}

func AllEdgesEnabled() EdgeSettings {
	return EdgeSettings{Left: true, Right: true, Top: true, Bottom: true}
}

// Broadcaster is the subset of transport behaviour the engine needs:
// broadcasting an encoded frame to all connected peers.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Backend is the subset of inputbackend.Backend the engine drives
// directly (cursor visibility and local cursor warps).
type Backend interface {
	HideCursor() error
	ShowCursor() error
	SendMouseEvent(event model.InputEvent) error
}

// deactivationCooldown is the minimum interval between a deactivation
// and the next transition, preventing an immediate re-trigger.
const deactivationCooldown = 500 * time.Millisecond

// edgeTolerancePx is how close to an edge the cursor must be to count
// as "at" that edge.
const edgeTolerancePx = 1

// Engine is the server-side edge/cursor state machine. It is driven
// exclusively from the supervisor's main loop; none of its methods are
// safe to call concurrently from multiple goroutines (matching the
// "core state owned by the main task" concurrency rule).
type Engine struct {
	layout  *layout.Manager
	backend Backend
	bc      Broadcaster
	log     *slog.Logger

	serverInstanceID string
	serverBounds     model.Rect

	state         State
	vc            model.VirtualCursor
	activeClient  string

	lastDeactivation time.Time

	globalEdges     EdgeSettings
	displayEdges    map[string]EdgeSettings
	lockedToScreen  bool
	lockHotkey      int
	keyRemap        map[int]int
	displays        []model.Display

	now func() time.Time
}

// New creates an engine bound to the given layout manager, input
// backend, and broadcaster. All four edges start enabled; replace the
// global set with SetGlobalEdges and add per-display overrides with
// SetDisplayEdges.
func New(lm *layout.Manager, backend Backend, bc Broadcaster, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		layout:       lm,
		backend:      backend,
		bc:           bc,
		log:          log,
		state:        StateLocal,
		globalEdges:  AllEdgesEnabled(),
		displayEdges: make(map[string]EdgeSettings),
		keyRemap:     make(map[int]int),
		now:          time.Now,
	}
}

// Configure installs the server's own instance id and screen bounds,
// used for edge detection.
func (e *Engine) Configure(serverInstanceID string, bounds model.Rect) {
	e.serverInstanceID = serverInstanceID
	e.serverBounds = bounds
}

// SetGlobalEdges replaces the default edge-enable configuration.
func (e *Engine) SetGlobalEdges(s EdgeSettings) { e.globalEdges = s }

// SetDisplayEdges installs a per-display edge override.
func (e *Engine) SetDisplayEdges(displayID string, s EdgeSettings) {
	e.displayEdges[displayID] = s
}

// SetDisplays installs the server's multi-monitor layout, used to
// resolve per-display edge overrides.
func (e *Engine) SetDisplays(displays []model.Display) { e.displays = displays }

// SetKeyRemap installs the keycode remap table applied to outgoing key
// events while Remote.
func (e *Engine) SetKeyRemap(remap map[int]int) { e.keyRemap = remap }

// SetLockHotkey configures the keycode that toggles lock_cursor_to_screen.
func (e *Engine) SetLockHotkey(keycode int) { e.lockHotkey = keycode }

// State returns the current engine state.
func (e *Engine) State() State { return e.state }

// ActiveClient returns the instance id of the currently active client,
// or "" if State() is Local.
func (e *Engine) ActiveClient() string { return e.activeClient }

// LockedToScreen reports whether lock_cursor_to_screen is currently set.
func (e *Engine) LockedToScreen() bool { return e.lockedToScreen }

func (e *Engine) edgeSettingsFor(x, y int) EdgeSettings {
	for _, d := range e.displays {
		if x >= d.X && x < d.X+d.W && y >= d.Y && y < d.Y+d.H {
			if s, ok := e.displayEdges[d.ID]; ok {
				return s
			}
			break
		}
	}
	return e.globalEdges
}

func (e *Engine) edgeAt(x, y int) (model.Side, bool) {
	settings := e.edgeSettingsFor(x, y)
	b := e.serverBounds
	switch {
	case x <= b.X+edgeTolerancePx && settings.Left:
		return model.SideLeft, true
	case x >= b.X+b.W-edgeTolerancePx-1 && settings.Right:
		return model.SideRight, true
	case y <= b.Y+edgeTolerancePx && settings.Top:
		return model.SideTop, true
	case y >= b.Y+b.H-edgeTolerancePx-1 && settings.Bottom:
		return model.SideBottom, true
	default:
		return 0, false
	}
}

// HandleLocalMouseMove is the Local-state MouseMove transition: it
// checks whether (x, y) sits on an enabled, unlocked, cooled-down edge
// with an online adjacent screen, and if so activates that client.
func (e *Engine) HandleLocalMouseMove(x, y int) {
	if e.state != StateLocal {
		return
	}
	if e.lockedToScreen {
		return
	}
	if e.now().Sub(e.lastDeactivation) < deactivationCooldown {
		return
	}
	side, ok := e.edgeAt(x, y)
	if !ok {
		return
	}
	target, ok := e.layout.TransitionTarget(e.serverInstanceID, side, x, y)
	if !ok || !target.Target.Online {
		return
	}
	e.activateClient(target.Target, target.NewX, target.NewY)
}

// HandleLockHotkey is the Local-state KeyPress transition for the
// configured lock hotkey: it toggles lock_cursor_to_screen and
// swallows the event (the caller must not forward it to the backend).
//
// Per the original implementation, this only blocks *new* transitions
// while a remote client is already active; it does not force a
// deactivation (documented open question, preserved as-is).
func (e *Engine) HandleLockHotkey(keycode int) bool {
	if e.lockHotkey == 0 || keycode != e.lockHotkey {
		return false
	}
	e.lockedToScreen = !e.lockedToScreen
	return true
}

// ToggleLockedToScreen flips lock_cursor_to_screen directly, the same
// transition HandleLockHotkey performs, for callers other than the
// local input backend (the debug HTTP surface's POST /api/lock).
func (e *Engine) ToggleLockedToScreen() bool {
	e.lockedToScreen = !e.lockedToScreen
	return e.lockedToScreen
}

func (e *Engine) activateClient(target model.Screen, newX, newY int) {
	if e.activeClient == target.InstanceID && e.state == StateRemote {
		return
	}

	e.activeClient = target.InstanceID
	e.vc = model.VirtualCursor{
		X: newX, Y: newY,
		ActiveRemoteBounds: model.Rect{W: target.W, H: target.H},
		TargetInstanceID:   target.InstanceID,
	}
	e.state = StateRemote

	if err := e.backend.HideCursor(); err != nil {
		e.log.Warn("engine: hide cursor failed", "error", err)
	}

	msg := protocol.NewActivateClient(target.InstanceID, newX, newY, e.now().UnixMilli())
	if data, err := protocol.Encode(msg); err != nil {
		e.log.Error("engine: encode activate_client failed", "error", err)
	} else {
		e.bc.Broadcast(data)
	}

	e.log.Info("engine: activated client", "target", target.InstanceID, "x", newX, "y", newY)
}

// HandleRemoteMouseMove is the Remote-state MouseMove transition:
// advance the virtual cursor by (dx, dy), clamped to the active
// bounds, and return an encoded mouseMove input_event tagged with the
// server's instance id for the caller to broadcast. Returns nil while
// Local.
func (e *Engine) HandleRemoteMouseMove(dx, dy int, modifiers, buttons uint32) []byte {
	if e.state != StateRemote {
		return nil
	}
	e.vc.MoveBy(dx, dy)
	return e.inputEventFrame("mouseMove", dx, dy, 0, 0, modifiers, buttons, 0, "", "")
}

// HandleRemoteButton returns an encoded mousePress/mouseRelease carrying
// the virtual cursor's current coordinates, for the caller to broadcast.
func (e *Engine) HandleRemoteButton(press bool, button string, modifiers, buttons uint32) []byte {
	if e.state != StateRemote {
		return nil
	}
	eventType := "mousePress"
	if !press {
		eventType = "mouseRelease"
	}
	return e.inputEventFrame(eventType, 0, 0, 0, 0, modifiers, buttons, 0, button, "")
}

// HandleRemoteScroll returns an encoded scroll event carrying the
// virtual cursor's current coordinates, for the caller to broadcast.
func (e *Engine) HandleRemoteScroll(scrollX, scrollY int, modifiers, buttons uint32) []byte {
	if e.state != StateRemote {
		return nil
	}
	return e.inputEventFrame("scroll", 0, 0, scrollX, scrollY, modifiers, buttons, 0, "", "")
}

// HandleRemoteKey returns an encoded keyPress/keyRelease for the caller
// to broadcast, remapping the keycode if a remap entry exists. The remap applies before the event
// leaves the server; it is direction-agnostic here (the policy of
// which direction to map lives in configuration).
func (e *Engine) HandleRemoteKey(press bool, keycode int, text string, modifiers, buttons uint32) []byte {
	if e.state != StateRemote {
		return nil
	}
	if remapped, ok := e.keyRemap[keycode]; ok {
		keycode = remapped
	}
	eventType := "keyPress"
	if !press {
		eventType = "keyRelease"
	}
	return e.inputEventFrame(eventType, 0, 0, 0, 0, modifiers, buttons, keycode, "", text)
}

func (e *Engine) inputEventFrame(eventType string, dx, dy, scrollX, scrollY int, modifiers, buttons uint32, keycode int, button, text string) []byte {
	msg := protocol.NewInputEvent(e.serverInstanceID, "", "", eventType, protocol.EventData{
		X: e.vc.X, Y: e.vc.Y,
		DX: dx, DY: dy,
		ScrollX: scrollX, ScrollY: scrollY,
		Timestamp:         e.now().UnixMilli(),
		KeyboardModifiers: modifiers,
		MouseButtons:      buttons,
		KeyCode:           keycode,
		Button:            button,
		Text:              text,
	})
	data, err := protocol.Encode(msg)
	if err != nil {
		e.log.Error("engine: encode input_event failed", "error", err)
		return nil
	}
	return data
}

// HandleDeactivationRequest is the Remote-state transition fired by
// deactivation_request from the active client, or by that client
// disconnecting. instanceID must match the active client or the
// request is ignored (a state violation per spec section 7).
func (e *Engine) HandleDeactivationRequest(instanceID string) {
	if e.state != StateRemote || instanceID != e.activeClient {
		return
	}
	e.deactivate()
}

// HandleActiveClientDisconnected deactivates if the disconnecting peer
// was the active client. Safe to call regardless of current state.
func (e *Engine) HandleActiveClientDisconnected(instanceID string) {
	if e.state == StateRemote && instanceID == e.activeClient {
		e.deactivate()
	}
}

func (e *Engine) deactivate() {
	if err := e.backend.ShowCursor(); err != nil {
		e.log.Warn("engine: show cursor failed", "error", err)
	}

	// Warp local cursor to the right edge of server bounds, y unchanged.
	rightEdgeX := e.serverBounds.X + e.serverBounds.W - 1
	state, _ := currentState(e.backend)
	_ = e.backend.SendMouseEvent(model.InputEvent{
		Kind:      model.EventMouseMove,
		Timestamp: e.now().UnixMilli(),
		State:     model.InputState{X: rightEdgeX, Y: state.Y},
	})

	e.log.Info("engine: deactivated", "was", e.activeClient)
	e.activeClient = ""
	e.vc = model.VirtualCursor{}
	e.state = StateLocal
	e.lastDeactivation = e.now()
}

// currentState is a narrow seam so deactivate() can read the backend's
// current y coordinate without widening the Backend interface beyond
// what the engine otherwise needs; callers that implement the wider
// inputbackend.Backend interface satisfy this automatically.
func currentState(b Backend) (model.InputState, error) {
	type stateGetter interface {
		GetState() (model.InputState, error)
	}
	if sg, ok := b.(stateGetter); ok {
		return sg.GetState()
	}
	return model.InputState{}, nil
}
