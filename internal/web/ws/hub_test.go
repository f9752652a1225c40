package ws

import (
	"context"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeFrames struct {
	data []byte
}

func (f fakeFrames) Snapshot() ([]byte, bool, error) {
	return f.data, f.data != nil, nil
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRequestFrame(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}
	hub := NewHub(fakeFrames{data: jpeg}, time.Hour, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(Message{Event: "unknown"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Message{Event: EventRequestFrame}); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Event != EventVideoFrame {
		t.Fatalf("event %s", msg.Event)
	}
	if msg.Data != hex.EncodeToString(jpeg) {
		t.Fatalf("data %s", msg.Data)
	}
}

func TestHeartbeat(t *testing.T) {
	var present atomic.Bool
	present.Store(true)
	hub := NewHub(fakeFrames{}, 20*time.Millisecond, present.Load)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dial(t, srv)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Event != EventHeartbeat || msg.Timestamp == "" {
		t.Fatalf("message %+v", msg)
	}
	if _, err := time.ParseInLocation(timestampLayout, msg.Timestamp, time.Local); err != nil {
		t.Fatal(err)
	}
	if hub.Count() != 1 {
		t.Fatalf("clients %d", hub.Count())
	}
}

func TestHeartbeatWithStalledClient(t *testing.T) {
	hub := NewHub(fakeFrames{}, 10*time.Millisecond, nil)
	// 没有 writePump 消费，send 永远写不进去
	stalled := &client{remote: "stalled", send: make(chan []byte)}
	hub.clients.Store(stalled, struct{}{})

	begin := time.Now()
	hub.broadcast([]byte(`{"event":"heartbeat"}`))
	if d := time.Since(begin); d > 100*time.Millisecond {
		t.Fatalf("broadcast blocked %s", d)
	}

	srv := httptest.NewServer(hub)
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dial(t, srv)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for range 5 {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if msg.Event != EventHeartbeat {
			t.Fatalf("message %+v", msg)
		}
	}
	if hub.Count() != 2 {
		t.Fatalf("clients %d", hub.Count())
	}
}
