package inputbackend

import (
	"sync"

	"github.com/konflikt/konflikt/internal/model"
)

// NoopBackend records every call it receives instead of touching real
// hardware. It backs the supervisor's unit tests; the daemon binary
// always uses RobotgoBackend and has no headless mode.
type NoopBackend struct {
	mu sync.Mutex

	Desktop  model.Desktop
	State    model.InputState
	Clipboard string

	visible   bool
	listening bool
	callback  func(model.InputEvent)

	MouseEvents []model.InputEvent
	KeyEvents   []model.InputEvent
}

// NewNoopBackend constructs a backend with a single 1920x1080 display.
func NewNoopBackend() *NoopBackend {
	return &NoopBackend{
		visible: true,
		Desktop: model.Desktop{
			Width: 1920, Height: 1080,
			Displays: []model.Display{{ID: "display-0", W: 1920, H: 1080, IsPrimary: true}},
		},
	}
}

func (b *NoopBackend) Initialize(logger Logger) bool { return true }
func (b *NoopBackend) Shutdown()                      {}

func (b *NoopBackend) GetState() (model.InputState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.State, nil
}

func (b *NoopBackend) GetDesktop() (model.Desktop, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Desktop, nil
}

func (b *NoopBackend) SendMouseEvent(event model.InputEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.MouseEvents = append(b.MouseEvents, event)
	return nil
}

func (b *NoopBackend) SendKeyEvent(event model.InputEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.KeyEvents = append(b.KeyEvents, event)
	return nil
}

func (b *NoopBackend) StartListening() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listening = true
	return nil
}

func (b *NoopBackend) StopListening() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listening = false
	return nil
}

func (b *NoopBackend) ShowCursor() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visible = true
	return nil
}

func (b *NoopBackend) HideCursor() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visible = false
	return nil
}

func (b *NoopBackend) IsCursorVisible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

func (b *NoopBackend) GetClipboardText(selection string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Clipboard, nil
}

func (b *NoopBackend) SetClipboardText(text, selection string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clipboard = text
	return true, nil
}

func (b *NoopBackend) OnEvent(callback func(model.InputEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callback = callback
}

// Emit feeds an event to the registered callback, simulating a
// capture-thread delivery. Test helper only.
func (b *NoopBackend) Emit(event model.InputEvent) {
	b.mu.Lock()
	cb := b.callback
	b.mu.Unlock()
	if cb != nil {
		cb(event)
	}
}
