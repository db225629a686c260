// Package inputbackend implements Konflikt's InputBackend interface:
// the platform seam for capturing raw input, synthesizing input, and
// querying cursor/clipboard/desktop state. The core (engine, session,
// clipboard) depends only on the Backend interface; RobotgoBackend and
// NoopBackend are its two implementations.
package inputbackend

import "github.com/konflikt/konflikt/internal/model"

// Logger is the minimal logging seam Initialize needs, satisfied by
// *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// Backend is the platform seam for input capture/synthesis, matching
// spec section 6's InputBackend interface one-for-one.
type Backend interface {
	Initialize(logger Logger) bool
	Shutdown()

	GetState() (model.InputState, error)
	GetDesktop() (model.Desktop, error)

	SendMouseEvent(event model.InputEvent) error
	SendKeyEvent(event model.InputEvent) error

	StartListening() error
	StopListening() error

	ShowCursor() error
	HideCursor() error
	IsCursorVisible() bool

	GetClipboardText(selection string) (string, error)
	SetClipboardText(text, selection string) (bool, error)

	// OnEvent registers the callback invoked from the capture thread
	// for every captured input event. Only one callback may be
	// registered; a later call replaces the previous one.
	OnEvent(callback func(model.InputEvent))
}
