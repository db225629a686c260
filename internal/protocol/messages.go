// Package protocol defines Konflikt's wire message set: a tagged JSON
// object family with a "type" discriminator, plus the fast-path codec
// that extracts the tag before picking a concrete variant to parse
// into.
package protocol

// Message type discriminators, exactly as they appear on the wire.
const (
	TypeHandshakeRequest    = "handshake_request"
	TypeHandshakeResponse   = "handshake_response"
	TypeClientRegistration  = "client_registration"
	TypeLayoutAssignment    = "layout_assignment"
	TypeLayoutUpdate        = "layout_update"
	TypeInputEvent          = "input_event"
	TypeActivateClient      = "activate_client"
	TypeDeactivationRequest = "deactivation_request"
	TypeClipboardSync       = "clipboard_sync"
	TypeServerShutdown      = "server_shutdown"
	TypeHeartbeat           = "heartbeat"
)

// EventData carries the fields of a single synthesized input event.
type EventData struct {
	X                 int    `json:"x"`
	Y                 int    `json:"y"`
	DX                int    `json:"dx,omitempty"`
	DY                int    `json:"dy,omitempty"`
	ScrollX           int    `json:"scrollX,omitempty"`
	ScrollY           int    `json:"scrollY,omitempty"`
	Timestamp         int64  `json:"timestamp"`
	KeyboardModifiers uint32 `json:"keyboardModifiers"`
	MouseButtons      uint32 `json:"mouseButtons"`
	KeyCode           int    `json:"keycode,omitempty"`
	Button            string `json:"button,omitempty"`
	Text              string `json:"text,omitempty"`
}

// ScreenInfo mirrors model.Screen on the wire.
type ScreenInfo struct {
	InstanceID  string `json:"instanceId"`
	DisplayName string `json:"displayName"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	IsServer    bool   `json:"isServer"`
	Online      bool   `json:"online"`
}

// Position is an (x, y) pair, used in layout_assignment.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Adjacency mirrors model.Adjacency on the wire, with empty strings
// for absent neighbours omitted.
type Adjacency struct {
	Left   string `json:"left,omitempty"`
	Right  string `json:"right,omitempty"`
	Top    string `json:"top,omitempty"`
	Bottom string `json:"bottom,omitempty"`
}

// HandshakeRequest announces identity, version, and capabilities.
type HandshakeRequest struct {
	Type         string   `json:"type"`
	InstanceID   string   `json:"instanceId"`
	InstanceName string   `json:"instanceName"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Timestamp    int64    `json:"timestamp"`
}

// HandshakeResponse accepts or rejects a handshake.
type HandshakeResponse struct {
	Type         string   `json:"type"`
	Accepted     bool     `json:"accepted"`
	InstanceID   string   `json:"instanceId"`
	InstanceName string   `json:"instanceName"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Timestamp    int64    `json:"timestamp"`
}

// ClientRegistration declares a client's screen geometry and machine id.
type ClientRegistration struct {
	Type          string `json:"type"`
	InstanceID    string `json:"instanceId"`
	DisplayName   string `json:"displayName"`
	MachineID     string `json:"machineId"`
	ScreenWidth   int    `json:"screenWidth"`
	ScreenHeight  int    `json:"screenHeight"`
}

// LayoutAssignment is sent to a newly registered client with its
// position, neighbour map, and the full current layout.
type LayoutAssignment struct {
	Type       string       `json:"type"`
	Position   Position     `json:"position"`
	Adjacency  Adjacency    `json:"adjacency"`
	FullLayout []ScreenInfo `json:"fullLayout"`
}

// LayoutUpdate broadcasts the full layout after any change.
type LayoutUpdate struct {
	Type      string       `json:"type"`
	Screens   []ScreenInfo `json:"screens"`
	Timestamp int64        `json:"timestamp"`
}

// InputEvent carries one synthesized input event from the server.
type InputEvent struct {
	Type             string    `json:"type"`
	SourceInstanceID string    `json:"sourceInstanceId"`
	SourceDisplayID  string    `json:"sourceDisplayId,omitempty"`
	SourceMachineID  string    `json:"sourceMachineId,omitempty"`
	EventType        string    `json:"eventType"`
	EventData        EventData `json:"eventData"`
}

// ActivateClient directs the client with TargetInstanceID to become
// active and warp its local cursor to (CursorX, CursorY).
type ActivateClient struct {
	Type             string `json:"type"`
	TargetInstanceID string `json:"targetInstanceId"`
	CursorX          int    `json:"cursorX"`
	CursorY          int    `json:"cursorY"`
	Timestamp        int64  `json:"timestamp"`
}

// DeactivationRequest is sent by the active client when its cursor
// crosses its left edge moving left.
type DeactivationRequest struct {
	Type       string `json:"type"`
	InstanceID string `json:"instanceId"`
	Timestamp  int64  `json:"timestamp"`
}

// ClipboardSync carries a new clipboard payload with its sequence.
type ClipboardSync struct {
	Type             string `json:"type"`
	SourceInstanceID string `json:"sourceInstanceId"`
	Format           string `json:"format"`
	Data             string `json:"data"`
	Sequence         uint32 `json:"sequence"`
	Timestamp        int64  `json:"timestamp"`
}

// ServerShutdown announces a graceful shutdown and expected restart
// delay, broadcast before the server closes its sockets.
type ServerShutdown struct {
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	DelayMS   int    `json:"delayMs"`
	Timestamp int64  `json:"timestamp"`
}

// Heartbeat is a liveness message sent by either side.
type Heartbeat struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
