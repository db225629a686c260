// Package discovery implements Service Discovery: mDNS registration on
// the server side and periodic browse/resolve on the client side,
// using grandcat/zeroconf (the pack's concrete register/browse mDNS
// library, as opposed to the lower-level pion/mdns pulled in
// transitively by WebRTC elsewhere in the corpus).
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/konflikt/konflikt/internal/model"
)

const (
	// ServiceType is the mDNS service type Konflikt advertises and browses.
	ServiceType = "_konflikt._tcp"
	// Domain is the standard mDNS local domain.
	Domain = "local."

	browseTimeout   = 4 * time.Second
	refreshInterval = 10 * time.Second
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Registrar advertises this instance as a Konflikt server over mDNS.
type Registrar struct {
	server *zeroconf.Server
}

// Register publishes ServiceType with a `id=<instanceID>` TXT record.
// A registration failure (including a name collision) is returned, not
// silently worked around by renaming.
func Register(instanceID, displayName string, port int) (*Registrar, error) {
	return register(zeroconf.Register, instanceID, displayName, port)
}

func register(fn registerFunc, instanceID, displayName string, port int) (*Registrar, error) {
	txt := []string{"id=" + instanceID}
	server, err := fn(displayName, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register mDNS service: %w", err)
	}
	return &Registrar{server: server}, nil
}

// Shutdown unregisters the mDNS service.
func (r *Registrar) Shutdown() {
	if r == nil || r.server == nil {
		return
	}
	r.server.Shutdown()
}

// EventKind distinguishes a newly seen peer from one whose mDNS record
// has expired.
type EventKind string

const (
	PeerUpserted EventKind = "upserted"
	PeerRemoved  EventKind = "removed"
)

// Event reports a change in the discovered-peer set.
type Event struct {
	Kind EventKind
	Peer model.DiscoveredPeer
}

// Scanner periodically browses for Konflikt servers over mDNS,
// filtering out its own advertisement.
type Scanner struct {
	selfInstanceID string
	log            *slog.Logger
	browse         browseFunc // overridable for tests
	scanTimeout    time.Duration

	mu    sync.RWMutex
	peers map[string]model.DiscoveredPeer

	events chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	now func() time.Time
}

// NewScanner creates a scanner that will exclude selfInstanceID from
// its results.
func NewScanner(selfInstanceID string, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		selfInstanceID: selfInstanceID,
		log:            log,
		peers:          make(map[string]model.DiscoveredPeer),
		events:         make(chan Event, 32),
		scanTimeout:    browseTimeout,
		now:            time.Now,
	}
}

// Start begins background scanning. Safe to call multiple times; only
// the first call has effect.
func (s *Scanner) Start() {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop halts scanning and closes the events channel.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		close(s.events)
	})
}

// Events delivers peer-upserted/peer-removed notifications. The
// supervisor drains this to log peer changes; auto-connect reads Peers.
func (s *Scanner) Events() <-chan Event { return s.events }

// Peers returns a snapshot of currently known candidates, sorted by
// display name then instance id.
func (s *Scanner) Peers() []model.DiscoveredPeer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DiscoveredPeer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].InstanceID < out[j].InstanceID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

func (s *Scanner) loop() {
	defer s.wg.Done()
	s.scan()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.scan()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scanner) scan() {
	browse := s.browse
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			s.log.Warn("discovery: create resolver failed", "error", err)
			return
		}
		browse = resolver.Browse
	}

	scanCtx, cancel := context.WithTimeout(s.ctx, s.scanTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	collected := make(map[string]model.DiscoveredPeer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-scanCtx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				peer, ok := parseEntry(entry, s.selfInstanceID)
				if !ok {
					continue
				}
				peer.LastSeenAt = s.now()
				collected[peer.InstanceID] = peer
			}
		}
	}()

	if err := browse(scanCtx, ServiceType, Domain, entries); err != nil {
		s.log.Warn("discovery: browse failed", "error", err)
		return
	}
	<-scanCtx.Done()
	<-done

	s.applySnapshot(collected)
}

func (s *Scanner) applySnapshot(next map[string]model.DiscoveredPeer) {
	s.mu.Lock()
	previous := s.peers
	s.peers = next
	s.mu.Unlock()

	for id, peer := range next {
		if _, existed := previous[id]; !existed {
			s.emit(Event{Kind: PeerUpserted, Peer: peer})
		}
	}
	for id, peer := range previous {
		if _, exists := next[id]; !exists {
			s.log.Info("discovery: lost mDNS record for peer", "instanceId", id)
			s.emit(Event{Kind: PeerRemoved, Peer: peer})
		}
	}
}

func (s *Scanner) emit(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

func parseEntry(entry *zeroconf.ServiceEntry, selfInstanceID string) (model.DiscoveredPeer, bool) {
	var id string
	for _, t := range entry.Text {
		if rest, ok := strings.CutPrefix(t, "id="); ok {
			id = strings.TrimSpace(rest)
			break
		}
	}
	if id == "" || id == selfInstanceID {
		return model.DiscoveredPeer{}, false
	}

	host := entry.HostName
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		host = entry.AddrIPv6[0].String()
	}

	name := entry.Instance
	if name == "" {
		name = id
	}

	return model.DiscoveredPeer{
		InstanceID:  id,
		DisplayName: name,
		Host:        host,
		Port:        entry.Port,
	}, true
}
