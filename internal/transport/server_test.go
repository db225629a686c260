package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialableURL(t *testing.T, s *Server) (string, func()) {
	t.Helper()
	httpSrv := httptest.NewServer(http.HandlerFunc(s.HandleUpgrade))
	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	return url, httpSrv.Close
}

func TestServerAcceptsConnectionAndEchoesViaSend(t *testing.T) {
	s := NewServer(nil)
	received := make(chan []byte, 1)
	s.OnMessage(func(conn string, data []byte) {
		_ = s.Send(conn, data)
	})

	url, closeSrv := dialableURL(t, s)
	defer closeSrv()

	client := NewClient(url, nil, nil)
	client.OnMessage(func(data []byte) { received <- data })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Dial(ctx))
	defer client.Close()

	require.NoError(t, client.Send([]byte(`{"type":"heartbeat"}`)))

	select {
	case data := <-received:
		assert.Equal(t, `{"type":"heartbeat"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}

	assert.Equal(t, 1, s.Count())
}

func TestServerBroadcastReachesAllConnections(t *testing.T) {
	s := NewServer(nil)
	url, closeSrv := dialableURL(t, s)
	defer closeSrv()

	got1 := make(chan []byte, 1)
	got2 := make(chan []byte, 1)
	c1 := NewClient(url, nil, nil)
	c1.OnMessage(func(data []byte) { got1 <- data })
	c2 := NewClient(url, nil, nil)
	c2.OnMessage(func(data []byte) { got2 <- data })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c1.Dial(ctx))
	require.NoError(t, c2.Dial(ctx))
	defer c1.Close()
	defer c2.Close()

	require.Eventually(t, func() bool { return s.Count() == 2 }, 2*time.Second, 10*time.Millisecond)
	s.Broadcast([]byte("hello"))

	for _, ch := range []chan []byte{got1, got2} {
		select {
		case data := <-ch:
			assert.Equal(t, "hello", string(data))
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for broadcast")
		}
	}
}

func TestServerSendToUnknownConnectionErrors(t *testing.T) {
	s := NewServer(nil)
	err := s.Send("does-not-exist", []byte("x"))
	assert.Error(t, err)
}

func TestServerDisconnectHandlerFiresOnClientClose(t *testing.T) {
	s := NewServer(nil)
	disconnected := make(chan string, 1)
	s.OnDisconnect(func(conn string) { disconnected <- conn })

	url, closeSrv := dialableURL(t, s)
	defer closeSrv()

	client := NewClient(url, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Dial(ctx))
	require.NoError(t, client.Close())

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect handler")
	}
}
