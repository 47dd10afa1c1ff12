package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForRoomSize(t *testing.T, hub *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.RoomSize(room) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s size never reached %d (got %d)", room, want, hub.RoomSize(room))
}

func TestHub_PublishReachesRoomSubscriber(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dialHub(t, srv)
	if err := conn.WriteJSON(controlMessage{Join: "c1-leaderboard"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForRoomSize(t, hub, "c1-leaderboard", 1)

	hub.Publish("c1-leaderboard", "leaderboard-update", map[string]int{"alice": 100})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Event != "leaderboard-update" {
		t.Errorf("event = %q, want leaderboard-update", ev.Event)
	}
	data, ok := ev.Data.(map[string]interface{})
	if !ok || data["alice"] != float64(100) {
		t.Errorf("data = %#v, want alice at 100", ev.Data)
	}
}

func TestHub_PublishIsRoomScoped(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dialHub(t, srv)
	if err := conn.WriteJSON(controlMessage{Join: "other-room"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForRoomSize(t, hub, "other-room", 1)

	hub.Publish("c1-leaderboard", "leaderboard-update", "payload")

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("subscriber of another room must not receive the event")
	}
}

func TestHub_PublishToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub()
	// Must not panic or block.
	hub.Publish("nobody-here", "leaderboard-update", "payload")
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dialHub(t, srv)
	if err := conn.WriteJSON(controlMessage{Join: "c1-leaderboard"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForRoomSize(t, hub, "c1-leaderboard", 1)

	if err := conn.WriteJSON(controlMessage{Leave: "c1-leaderboard"}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	waitForRoomSize(t, hub, "c1-leaderboard", 0)

	hub.Publish("c1-leaderboard", "leaderboard-update", "payload")
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("a client that left the room must not receive the event")
	}
}

func TestHub_DisconnectLeavesRooms(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dialHub(t, srv)
	if err := conn.WriteJSON(controlMessage{Join: "c1-leaderboard"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForRoomSize(t, hub, "c1-leaderboard", 1)

	conn.Close()
	waitForRoomSize(t, hub, "c1-leaderboard", 0)
}

func TestHub_ConcurrentPublishesDropSlowConsumerOnce(t *testing.T) {
	hub := NewHub()

	// A client with a full send buffer, subscribed to many rooms. Every
	// publisher that reaches it takes the drop path; only one of them may
	// close the send channel.
	c := &client{hub: hub, send: make(chan []byte, 1), rooms: make(map[string]struct{})}
	rooms := make([]string, 16)
	for i := range rooms {
		rooms[i] = fmt.Sprintf("contest-%d-leaderboard", i)
		hub.join(c, rooms[i])
	}
	c.send <- []byte("backlog")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, room := range rooms {
				hub.Publish(room, "leaderboard-update", "payload")
			}
		}()
	}
	wg.Wait()

	for _, room := range rooms {
		if got := hub.RoomSize(room); got != 0 {
			t.Errorf("room %s size = %d, want 0 after the slow consumer is dropped", room, got)
		}
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		t.Error("dropped client's send channel must be closed")
	}

	// The hub keeps working for everyone else.
	hub.Publish(rooms[0], "leaderboard-update", "payload")
}

func TestHub_TwoSubscribersBothReceive(t *testing.T) {
	hub, srv := newTestHub(t)

	conns := []*websocket.Conn{dialHub(t, srv), dialHub(t, srv)}
	for _, conn := range conns {
		if err := conn.WriteJSON(controlMessage{Join: "c1-leaderboard"}); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	waitForRoomSize(t, hub, "c1-leaderboard", 2)

	hub.Publish("c1-leaderboard", "leaderboard-update", "payload")

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("subscriber %d did not receive the event: %v", i, err)
		}
	}
}
