package model

// EventKind enumerates the input events InputBackend produces/consumes.
type EventKind string

const (
	EventMouseMove     EventKind = "mouseMove"
	EventMousePress    EventKind = "mousePress"
	EventMouseRelease  EventKind = "mouseRelease"
	EventMouseScroll   EventKind = "scroll"
	EventKeyPress      EventKind = "keyPress"
	EventKeyRelease    EventKind = "keyRelease"
	EventDesktopChange EventKind = "desktopChanged"
)

// MouseButton enumerates the buttons carried on Press/Release events.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// InputState is a snapshot of the backend's current pointer/modifier
// state, as returned by InputBackend.GetState.
type InputState struct {
	X, Y               int
	DX, DY             int
	ScrollX, ScrollY   int
	MouseButtons       uint32
	KeyboardModifiers  uint32
}

// InputEvent is one synthesized or captured input event. The payload
// fields used depend on Kind.
type InputEvent struct {
	Kind      EventKind
	Timestamp int64
	State     InputState
	Button    MouseButton
	KeyCode   int
	Text      string
}

// Display describes one monitor in a multi-display desktop.
type Display struct {
	ID        string
	X, Y      int
	W, H      int
	IsPrimary bool
}

// Desktop describes the local machine's screen geometry.
type Desktop struct {
	Width    int
	Height   int
	Displays []Display
}

// DisplayContaining returns the display whose bounds contain (x, y),
// or false if none does (e.g. the point lies outside every display).
func (d Desktop) DisplayContaining(x, y int) (Display, bool) {
	for _, disp := range d.Displays {
		if x >= disp.X && x < disp.X+disp.W && y >= disp.Y && y < disp.Y+disp.H {
			return disp, true
		}
	}
	return Display{}, false
}
