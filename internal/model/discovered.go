package model

import "time"

// DiscoveredPeer is a candidate server surfaced by mDNS browsing. It is
// held only in the discovery component's in-memory table, never
// persisted.
type DiscoveredPeer struct {
	InstanceID  string
	DisplayName string
	Host        string
	Port        int
	LastSeenAt  time.Time
}
