package inputbackend

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"
	"github.com/konflikt/konflikt/internal/model"
	hook "github.com/robotn/gohook"
)

// RobotgoBackend implements Backend on top of go-vgo/robotgo (mouse,
// keyboard, clipboard) and kbinani/screenshot (desktop geometry).
type RobotgoBackend struct {
	mu       sync.Mutex
	logger   Logger
	callback func(model.InputEvent)
	visible  bool
	listening bool
	stopCh   chan struct{}
	lastX, lastY int
}

// NewRobotgoBackend constructs an uninitialized backend.
func NewRobotgoBackend() *RobotgoBackend {
	return &RobotgoBackend{visible: true}
}

func (b *RobotgoBackend) Initialize(logger Logger) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	x, y := robotgo.GetMousePos()
	b.lastX, b.lastY = x, y
	b.visible = true
	if b.logger != nil {
		b.logger.Info("inputbackend: initialized", "backend", "robotgo")
	}
	return true
}

func (b *RobotgoBackend) Shutdown() {
	_ = b.StopListening()
}

func (b *RobotgoBackend) GetState() (model.InputState, error) {
	x, y := robotgo.GetMousePos()
	b.mu.Lock()
	dx, dy := x-b.lastX, y-b.lastY
	b.lastX, b.lastY = x, y
	b.mu.Unlock()
	return model.InputState{X: x, Y: y, DX: dx, DY: dy}, nil
}

func (b *RobotgoBackend) GetDesktop() (model.Desktop, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return model.Desktop{}, fmt.Errorf("inputbackend: no active displays detected")
	}
	displays := make([]model.Display, 0, n)
	minX, minY, maxX, maxY := 0, 0, 0, 0
	for i := 0; i < n; i++ {
		bounds := screenshot.GetDisplayBounds(i)
		d := model.Display{
			ID:        fmt.Sprintf("display-%d", i),
			X:         bounds.Min.X,
			Y:         bounds.Min.Y,
			W:         bounds.Dx(),
			H:         bounds.Dy(),
			IsPrimary: i == 0,
		}
		displays = append(displays, d)
		if bounds.Min.X < minX {
			minX = bounds.Min.X
		}
		if bounds.Min.Y < minY {
			minY = bounds.Min.Y
		}
		if bounds.Max.X > maxX {
			maxX = bounds.Max.X
		}
		if bounds.Max.Y > maxY {
			maxY = bounds.Max.Y
		}
	}
	return model.Desktop{Width: maxX - minX, Height: maxY - minY, Displays: displays}, nil
}

func (b *RobotgoBackend) SendMouseEvent(event model.InputEvent) error {
	switch event.Kind {
	case model.EventMouseMove:
		robotgo.Move(event.State.X, event.State.Y)
	case model.EventMousePress:
		return toggleButton(event.Button, "down")
	case model.EventMouseRelease:
		return toggleButton(event.Button, "up")
	case model.EventMouseScroll:
		robotgo.Scroll(event.State.ScrollX, event.State.ScrollY)
	default:
		return fmt.Errorf("inputbackend: not a mouse event: %s", event.Kind)
	}
	return nil
}

func toggleButton(btn model.MouseButton, dir string) error {
	name := string(btn)
	switch btn {
	case "":
		name = "left"
	case model.ButtonMiddle:
		name = "center" // robotgo.Toggle has no "middle", only "left"/"center"/"right"
	}
	return robotgo.Toggle(name, dir)
}

func (b *RobotgoBackend) SendKeyEvent(event model.InputEvent) error {
	switch event.Kind {
	case model.EventKeyPress:
		return robotgo.KeyToggle(keyName(event.KeyCode), "down")
	case model.EventKeyRelease:
		return robotgo.KeyToggle(keyName(event.KeyCode), "up")
	default:
		return fmt.Errorf("inputbackend: not a key event: %s", event.Kind)
	}
}

func (b *RobotgoBackend) StartListening() error {
	b.mu.Lock()
	if b.listening {
		b.mu.Unlock()
		return nil
	}
	b.listening = true
	stop := make(chan struct{})
	b.stopCh = stop
	b.mu.Unlock()

	go b.captureLoop(stop)
	return nil
}

func (b *RobotgoBackend) StopListening() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.listening {
		return nil
	}
	b.listening = false
	close(b.stopCh)
	b.stopCh = nil
	return nil
}

// captureLoop drives the global OS input hook (github.com/robotn/gohook,
// robotgo's own sibling package for exactly this gap: robotgo's core
// package covers synthesis — Move/Toggle/KeyToggle/Scroll — but not
// capture) and translates every hooked transition into the matching
// model.InputEvent, handing it to the registered callback. This is
// what lets a captured key press reach HandleLockHotkey and what lets
// a captured button/scroll/key reach the Remote-state relay; before
// this, only mouse position was ever observed locally.
func (b *RobotgoBackend) captureLoop(stop chan struct{}) {
	events := hook.Start()
	defer hook.End()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.dispatchHookEvent(ev)
		}
	}
}

func (b *RobotgoBackend) dispatchHookEvent(ev hook.Event) {
	b.mu.Lock()
	cb := b.callback
	b.mu.Unlock()
	if cb == nil {
		return
	}
	ts := time.Now().UnixMilli()
	switch ev.Kind {
	case hook.MouseMove, hook.MouseDrag:
		x, y := int(ev.X), int(ev.Y)
		b.mu.Lock()
		dx, dy := x-b.lastX, y-b.lastY
		b.lastX, b.lastY = x, y
		b.mu.Unlock()
		if dx == 0 && dy == 0 {
			return
		}
		cb(model.InputEvent{
			Kind:      model.EventMouseMove,
			Timestamp: ts,
			State:     model.InputState{X: x, Y: y, DX: dx, DY: dy},
		})
	case hook.MouseDown:
		cb(model.InputEvent{Kind: model.EventMousePress, Timestamp: ts, Button: hookButtonName(ev.Button)})
	case hook.MouseUp:
		cb(model.InputEvent{Kind: model.EventMouseRelease, Timestamp: ts, Button: hookButtonName(ev.Button)})
	case hook.MouseWheel:
		// Only vertical scroll is captured, matching the teacher's own
		// robotgo.Scroll(0, event.DeltaY) — horizontal wheel rotation
		// is never read there either.
		cb(model.InputEvent{Kind: model.EventMouseScroll, Timestamp: ts, State: model.InputState{ScrollY: int(ev.Rotation)}})
	case hook.KeyDown:
		cb(model.InputEvent{Kind: model.EventKeyPress, Timestamp: ts, KeyCode: int(ev.Rawcode), Text: string(ev.Keychar)})
	case hook.KeyUp:
		cb(model.InputEvent{Kind: model.EventKeyRelease, Timestamp: ts, KeyCode: int(ev.Rawcode)})
	}
}

// hookButtonName maps gohook's numeric button code to model.MouseButton
// (2=right, 3=middle; any other code, including 1, maps to left).
func hookButtonName(code uint8) model.MouseButton {
	switch code {
	case 2:
		return model.ButtonRight
	case 3:
		return model.ButtonMiddle
	default:
		return model.ButtonLeft
	}
}

// ShowCursor and HideCursor track visibility as a local bool only;
// robotgo has no portable cursor-hide primitive, so neither call
// touches the OS cursor.
func (b *RobotgoBackend) ShowCursor() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visible = true
	return nil
}

func (b *RobotgoBackend) HideCursor() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visible = false
	return nil
}

func (b *RobotgoBackend) IsCursorVisible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

func (b *RobotgoBackend) GetClipboardText(selection string) (string, error) {
	text, err := robotgo.ReadAll()
	if err != nil {
		return "", fmt.Errorf("inputbackend: read clipboard: %w", err)
	}
	return text, nil
}

func (b *RobotgoBackend) SetClipboardText(text, selection string) (bool, error) {
	if err := robotgo.WriteAll(text); err != nil {
		return false, fmt.Errorf("inputbackend: write clipboard: %w", err)
	}
	return true, nil
}

func (b *RobotgoBackend) OnEvent(callback func(model.InputEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callback = callback
}

// keyName maps a numeric keycode to robotgo's string key names. A
// full platform-independent keycode table is out of scope here; the
// engine's configurable keyRemap (internal/engine) is the layer
// responsible for cross-platform keycode translation, so this only
// needs to cover the common ASCII range used by tests and simple
// deployments.
func keyName(code int) string {
	if code >= 'a' && code <= 'z' {
		return string(rune(code))
	}
	if code >= 'A' && code <= 'Z' {
		return string(rune(code + 32))
	}
	switch code {
	case 8:
		return "backspace"
	case 9:
		return "tab"
	case 13:
		return "enter"
	case 27:
		return "esc"
	case 32:
		return "space"
	default:
		return fmt.Sprintf("%d", code)
	}
}
