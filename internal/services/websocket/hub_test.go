package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codetrace/internal/logger"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, hub *HubService) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, have %d", n, hub.GetClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_PublishReachesClients(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	go hub.Run()
	defer hub.Stop()

	srv := newTestServer(t, hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Publish(Event{Type: "import.progress", BatchID: "b1", Payload: map[string]int{"done": 1}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Invalid event JSON: %v", err)
	}
	if got.Type != "import.progress" || got.BatchID != "b1" || got.At.IsZero() {
		t.Errorf("Unexpected event %+v", got)
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	go hub.Run()
	defer hub.Stop()

	srv := newTestServer(t, hub)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	// Run is not started, so nothing drains the queue.
	for i := 0; i < cap(hub.broadcast); i++ {
		if !hub.Broadcast([]byte("x")) {
			t.Fatalf("Broadcast %d should be queued", i)
		}
	}
	if hub.Broadcast([]byte("x")) {
		t.Error("Expected broadcast to be dropped when the queue is full")
	}
}

func TestHub_StopIsIdempotent(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
