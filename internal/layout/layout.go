// Package layout maintains the set of screens in the shared coordinate
// plane and answers adjacency and edge-transition queries.
//
// This is a direct port of the original implementation's LayoutManager
// (register at the rightmost slot, re-pack left-to-right on removal,
// derive adjacency from collinear edges) translated into Go's
// map/slice idiom in place of std::map/std::optional.
package layout

import (
	"sort"
	"sync"

	"github.com/konflikt/konflikt/internal/model"
)

// Manager owns the screen set. All methods are safe for concurrent
// use, though in Konflikt's design only the supervisor goroutine calls
// them (see internal/supervisor).
type Manager struct {
	mu      sync.Mutex
	screens map[string]model.Screen
	onChange func([]model.Screen)
}

// New creates an empty layout manager.
func New() *Manager {
	return &Manager{screens: make(map[string]model.Screen)}
}

// OnChange registers a callback invoked (outside the internal lock)
// whenever the layout changes. Only one callback may be registered;
// the supervisor uses it to trigger layout_update broadcasts.
func (m *Manager) OnChange(fn func([]model.Screen)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetServerScreen installs the server at (0, 0).
func (m *Manager) SetServerScreen(id, name, machineID string, w, h int) model.Screen {
	entry := model.Screen{
		InstanceID:  id,
		DisplayName: name,
		MachineID:   machineID,
		X:           0,
		Y:           0,
		W:           w,
		H:           h,
		IsServer:    true,
		Online:      true,
	}
	m.mu.Lock()
	m.screens[id] = entry
	m.mu.Unlock()
	m.fireChange()
	return entry
}

// RegisterClient inserts a new screen to the right of the rightmost
// existing screen, top-aligned at y=0. A reconnecting id (still present
// from a prior registration, left behind by SetOnline(false) rather
// than UnregisterClient) keeps its previous position instead of being
// appended again, so the rest of the layout doesn't shift under it.
func (m *Manager) RegisterClient(id, name, machineID string, w, h int) model.Screen {
	m.mu.Lock()
	entry, reconnect := m.screens[id]
	if reconnect {
		entry.DisplayName = name
		entry.MachineID = machineID
		entry.W = w
		entry.H = h
		entry.Online = true
	} else {
		maxRight := 0
		for _, s := range m.screens {
			if right := s.X + s.W; right > maxRight {
				maxRight = right
			}
		}
		entry = model.Screen{
			InstanceID:  id,
			DisplayName: name,
			MachineID:   machineID,
			X:           maxRight,
			Y:           0,
			W:           w,
			H:           h,
			IsServer:    false,
			Online:      true,
		}
	}
	m.screens[id] = entry
	m.mu.Unlock()
	m.fireChange()
	return entry
}

// UnregisterClient removes a screen and re-packs the remaining screens
// left to right, ordered by their prior x position. The server always
// sorts first since it sits at x=0.
func (m *Manager) UnregisterClient(id string) {
	m.mu.Lock()
	delete(m.screens, id)
	m.arrangeLocked()
	m.mu.Unlock()
	m.fireChange()
}

// SetOnline toggles a screen's online bit without re-arranging
// positions. Unknown ids are a no-op.
func (m *Manager) SetOnline(id string, online bool) {
	m.mu.Lock()
	s, ok := m.screens[id]
	if ok {
		s.Online = online
		m.screens[id] = s
	}
	m.mu.Unlock()
	if ok {
		m.fireChange()
	}
}

// Screen returns the screen with the given id, if any.
func (m *Manager) Screen(id string) (model.Screen, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.screens[id]
	return s, ok
}

// Layout returns a snapshot of all screens, sorted left to right by x.
func (m *Manager) Layout() []model.Screen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layoutLocked()
}

func (m *Manager) layoutLocked() []model.Screen {
	out := make([]model.Screen, 0, len(m.screens))
	for _, s := range m.screens {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}

// Adjacency derives the neighbour map for the given screen from
// current positions. Two screens are adjacent on an edge when that
// edge is collinear with the other's opposite edge and their extents
// on the perpendicular axis overlap by at least one pixel.
func (m *Manager) Adjacency(id string) model.Adjacency {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjacencyLocked(id)
}

func (m *Manager) adjacencyLocked(id string) model.Adjacency {
	var adj model.Adjacency
	screen, ok := m.screens[id]
	if !ok {
		return adj
	}
	for otherID, other := range m.screens {
		if otherID == id {
			continue
		}
		if other.X+other.W == screen.X && verticalOverlap(screen, other) {
			adj.Left = otherID
		}
		if screen.X+screen.W == other.X && verticalOverlap(screen, other) {
			adj.Right = otherID
		}
		if other.Y+other.H == screen.Y && horizontalOverlap(screen, other) {
			adj.Top = otherID
		}
		if screen.Y+screen.H == other.Y && horizontalOverlap(screen, other) {
			adj.Bottom = otherID
		}
	}
	return adj
}

func verticalOverlap(a, b model.Screen) bool {
	lo := maxInt(a.Y, b.Y)
	hi := minInt(a.Y+a.H, b.Y+b.H)
	return hi-lo >= 1
}

func horizontalOverlap(a, b model.Screen) bool {
	lo := maxInt(a.X, b.X)
	hi := minInt(a.X+a.W, b.X+b.W)
	return hi-lo >= 1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// TransitionTarget computes the landing screen and local coordinates
// for a cursor crossing the given edge of fromID. Returns ok=false for
// an unknown source, a missing neighbour, or an offline target.
//
// The 2-pixel inset (T.w-2 / 1, T.h-2 / 1) prevents an immediate
// return-transition on the very next edge check.
func (m *Manager) TransitionTarget(fromID string, edge model.Side, cursorX, cursorY int) (model.TransitionTarget, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from, ok := m.screens[fromID]
	if !ok {
		return model.TransitionTarget{}, false
	}
	adj := m.adjacencyLocked(fromID)
	targetID := adj.Get(edge)
	if targetID == "" {
		return model.TransitionTarget{}, false
	}
	target, ok := m.screens[targetID]
	if !ok || !target.Online {
		return model.TransitionTarget{}, false
	}

	var newX, newY int
	switch edge {
	case model.SideLeft:
		newX = target.W - 2
		newY = model.Clamp(cursorY-from.Y, 0, target.H-1)
	case model.SideRight:
		newX = 1
		newY = model.Clamp(cursorY-from.Y, 0, target.H-1)
	case model.SideTop:
		newX = model.Clamp(cursorX-from.X, 0, target.W-1)
		newY = target.H - 2
	case model.SideBottom:
		newX = model.Clamp(cursorX-from.X, 0, target.W-1)
		newY = 1
	}

	return model.TransitionTarget{Target: target, NewX: newX, NewY: newY}, true
}

func (m *Manager) arrangeLocked() {
	screens := make([]model.Screen, 0, len(m.screens))
	for _, s := range m.screens {
		screens = append(screens, s)
	}
	sort.Slice(screens, func(i, j int) bool { return screens[i].X < screens[j].X })

	x := 0
	for _, s := range screens {
		s.X = x
		s.Y = 0
		m.screens[s.InstanceID] = s
		x += s.W
	}
}

func (m *Manager) fireChange() {
	m.mu.Lock()
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb(m.Layout())
	}
}
