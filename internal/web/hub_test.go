package web

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gaugeRecorder struct {
	mu   sync.Mutex
	last float64
}

func (g *gaugeRecorder) Set(v float64) {
	g.mu.Lock()
	g.last = v
	g.mu.Unlock()
}

func (g *gaugeRecorder) value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func TestHub_PublishReachesClient(t *testing.T) {
	gauge := &gaugeRecorder{}
	hub := NewHub(nil, gauge)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, gauge.value())

	hub.Publish(MemoriesEvent(3))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, Event{Type: "memories", Count: 3}, ev)
}

func TestHub_ClientLeaving(t *testing.T) {
	gauge := &gaugeRecorder{}
	hub := NewHub(nil, gauge)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, gauge.value())
}

func TestHub_PublishWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, nil)
	for i := 0; i < 200; i++ {
		hub.Publish(MemoriesEvent(i))
	}
}
