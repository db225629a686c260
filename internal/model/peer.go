package model

import "time"

// Peer is a connected participant: a WebSocket connection that may or
// may not yet have completed the handshake/registration sequence.
type Peer struct {
	ConnectionHandle string
	InstanceID       string
	DisplayName      string
	ScreenW          int
	ScreenH          int
	ConnectedAt      time.Time
	Active           bool
	Handshaken       bool
}
