package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWrapsUnderlyingError(t *testing.T) {
	fn := func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
		return nil, errors.New("boom")
	}
	_, err := register(fn, "self", "Self", 9000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestScannerFiltersSelfAndEmitsUpsert(t *testing.T) {
	s := NewScanner("self-id", nil)
	s.scanTimeout = 20 * time.Millisecond
	s.browse = func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		entries <- &zeroconf.ServiceEntry{
			ServiceRecord: zeroconf.ServiceRecord{Instance: "Self"},
			Text:          []string{"id=self-id"},
			Port:          9000,
		}
		entries <- &zeroconf.ServiceEntry{
			ServiceRecord: zeroconf.ServiceRecord{Instance: "Peer One"},
			Text:          []string{"id=peer-1"},
			HostName:      "peer-one.local.",
			Port:          9001,
		}
		close(entries)
		return nil
	}

	s.Start()
	defer s.Stop()

	select {
	case ev := <-s.Events():
		require.Equal(t, PeerUpserted, ev.Kind)
		assert.Equal(t, "peer-1", ev.Peer.InstanceID)
		assert.Equal(t, "Peer One", ev.Peer.DisplayName)
		assert.Equal(t, 9001, ev.Peer.Port)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upsert event")
	}

	peers := s.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "peer-1", peers[0].InstanceID)
}

func TestScannerEmitsRemovedWhenRecordDisappears(t *testing.T) {
	s := NewScanner("self-id", nil)
	s.ctx = context.Background()
	s.scanTimeout = 20 * time.Millisecond
	present := true
	s.browse = func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		if present {
			entries <- &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Peer One"},
				Text:          []string{"id=peer-1"},
			}
		}
		close(entries)
		return nil
	}

	s.scan()
	require.Len(t, s.Peers(), 1)

	present = false
	s.scan()
	assert.Empty(t, s.Peers())

	var sawRemoved bool
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == PeerRemoved {
				sawRemoved = true
			}
		default:
			assert.True(t, sawRemoved, "losing a peer's mDNS record must emit PeerRemoved")
			return
		}
	}
}
