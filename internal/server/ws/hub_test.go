package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

type fakeBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]chan []byte)}
}

func (b *fakeBus) channel(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subs[name]
	if !ok {
		ch = make(chan []byte, 8)
		b.subs[name] = ch
	}
	return ch
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.channel(channel) <- payload
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.channel(channel), nil
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRevRange(context.Context, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func startHub(t *testing.T) (*fakeBus, *Hub, *websocket.Conn) {
	t.Helper()
	bus := newFakeBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var status map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, "status", status["type"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return bus, hub, conn
}

func TestHub_ForwardsBusMessages(t *testing.T) {
	bus, _, conn := startHub(t)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelArb, []byte(`{"symbol":"SOLUSDC"}`)))

	var frame Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, domain.ChannelArb, frame.Channel)
	assert.JSONEq(t, `{"symbol":"SOLUSDC"}`, string(frame.Data))
}

func TestHub_Unsubscribe(t *testing.T) {
	bus, _, conn := startHub(t)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelCandles}}))
	// Let the read pump apply the change before publishing.
	time.Sleep(50 * time.Millisecond)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domain.ChannelCandles, []byte(`{"venue":"binance"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelArb, []byte(`{"symbol":"SOLUSDC"}`)))

	var frame Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, domain.ChannelArb, frame.Channel)
}

func TestAsJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(asJSON([]byte(`{"a":1}`))))
	out, err := json.Marshal(Frame{Channel: "x", Data: asJSON([]byte("plain text"))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"x","data":"plain text"}`, string(out))
}
