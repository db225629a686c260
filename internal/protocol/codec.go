package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrUnknownType is returned by Decode when the message's "type" field
// does not match any known variant. Callers should log and drop the
// frame, not treat this as fatal.
type ErrUnknownType struct {
	Type string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("protocol: unknown message type %q", e.Type)
}

type typeOnly struct {
	Type string `json:"type"`
}

// PeekType extracts only the "type" discriminator from a JSON message,
// without parsing the rest of the payload. This mirrors the fast-path
// extraction the original implementation performs before committing to
// a full decode.
func PeekType(data []byte) (string, error) {
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return "", fmt.Errorf("protocol: peek type: %w", err)
	}
	if t.Type == "" {
		return "", fmt.Errorf("protocol: message missing required \"type\" field")
	}
	return t.Type, nil
}

// Decode parses a JSON frame into its concrete message type. The
// returned value is one of the structs in messages.go; callers
// type-switch on it. Unknown types return *ErrUnknownType.
func Decode(data []byte) (any, error) {
	t, err := PeekType(data)
	if err != nil {
		return nil, err
	}

	var msg any
	switch t {
	case TypeHandshakeRequest:
		msg = &HandshakeRequest{}
	case TypeHandshakeResponse:
		msg = &HandshakeResponse{}
	case TypeClientRegistration:
		msg = &ClientRegistration{}
	case TypeLayoutAssignment:
		msg = &LayoutAssignment{}
	case TypeLayoutUpdate:
		msg = &LayoutUpdate{}
	case TypeInputEvent:
		msg = &InputEvent{}
	case TypeActivateClient:
		msg = &ActivateClient{}
	case TypeDeactivationRequest:
		msg = &DeactivationRequest{}
	case TypeClipboardSync:
		msg = &ClipboardSync{}
	case TypeServerShutdown:
		msg = &ServerShutdown{}
	case TypeHeartbeat:
		msg = &Heartbeat{}
	default:
		return nil, &ErrUnknownType{Type: t}
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", t, err)
	}
	return msg, nil
}

// Encode marshals any message variant to its JSON wire form. Callers
// are expected to have set the Type field to the matching constant
// (the New* constructors below do this).
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return data, nil
}

// Constructors below stamp the Type discriminator so callers never
// have to repeat the literal string.

func NewHandshakeRequest(instanceID, name, version string, caps []string, ts int64) HandshakeRequest {
	return HandshakeRequest{Type: TypeHandshakeRequest, InstanceID: instanceID, InstanceName: name, Version: version, Capabilities: caps, Timestamp: ts}
}

func NewHandshakeResponse(accepted bool, instanceID, name, version string, caps []string, ts int64) HandshakeResponse {
	return HandshakeResponse{Type: TypeHandshakeResponse, Accepted: accepted, InstanceID: instanceID, InstanceName: name, Version: version, Capabilities: caps, Timestamp: ts}
}

func NewClientRegistration(instanceID, displayName, machineID string, w, h int) ClientRegistration {
	return ClientRegistration{Type: TypeClientRegistration, InstanceID: instanceID, DisplayName: displayName, MachineID: machineID, ScreenWidth: w, ScreenHeight: h}
}

func NewLayoutAssignment(pos Position, adj Adjacency, full []ScreenInfo) LayoutAssignment {
	return LayoutAssignment{Type: TypeLayoutAssignment, Position: pos, Adjacency: adj, FullLayout: full}
}

func NewLayoutUpdate(screens []ScreenInfo, ts int64) LayoutUpdate {
	return LayoutUpdate{Type: TypeLayoutUpdate, Screens: screens, Timestamp: ts}
}

func NewInputEvent(source, displayID, machineID, eventType string, data EventData) InputEvent {
	return InputEvent{Type: TypeInputEvent, SourceInstanceID: source, SourceDisplayID: displayID, SourceMachineID: machineID, EventType: eventType, EventData: data}
}

func NewActivateClient(target string, x, y int, ts int64) ActivateClient {
	return ActivateClient{Type: TypeActivateClient, TargetInstanceID: target, CursorX: x, CursorY: y, Timestamp: ts}
}

func NewDeactivationRequest(instanceID string, ts int64) DeactivationRequest {
	return DeactivationRequest{Type: TypeDeactivationRequest, InstanceID: instanceID, Timestamp: ts}
}

func NewClipboardSync(source, format, data string, seq uint32, ts int64) ClipboardSync {
	return ClipboardSync{Type: TypeClipboardSync, SourceInstanceID: source, Format: format, Data: data, Sequence: seq, Timestamp: ts}
}

func NewServerShutdown(reason string, delayMS int, ts int64) ServerShutdown {
	return ServerShutdown{Type: TypeServerShutdown, Reason: reason, DelayMS: delayMS, Timestamp: ts}
}

func NewHeartbeat(ts int64) Heartbeat {
	return Heartbeat{Type: TypeHeartbeat, Timestamp: ts}
}
