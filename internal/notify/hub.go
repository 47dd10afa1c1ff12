package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Event is the wire frame pushed to room subscribers.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// controlMessage is what clients send upstream: join/leave a room by name.
type controlMessage struct {
	Join  string `json:"join,omitempty"`
	Leave string `json:"leave,omitempty"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	rooms  map[string]struct{}
}

// trySend queues a payload without blocking. Returns false when the client is
// closed or its buffer is full. Sends happen under the lock so they can never
// race closeSend into a closed channel.
func (c *client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once, no matter how many
// publishers decide to drop the client concurrently.
func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub fans events out to room subscribers. Publishing never blocks: a client
// whose send buffer is full is dropped rather than stalling the publisher.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Publish sends an event to every subscriber of the room. Unknown rooms are a
// no-op. Errors never propagate to the caller.
func (h *Hub) Publish(room, event string, data interface{}) {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		log.Printf("ERROR: Failed to marshal event %q for room %s: %v", event, room, err)
		return
	}

	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		if !c.trySend(payload) {
			// Slow consumer: drop it instead of blocking the publisher.
			h.remove(c)
			c.closeSend()
		}
	}
}

// RoomSize reports the current subscriber count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ServeWS upgrades the request and runs the client's read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WARN: Websocket upgrade failed: %v", err)
		return
	}
	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
	go c.writePump()
	go c.readPump()
}

func (h *Hub) join(c *client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()

	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	if subs, ok := h.rooms[room]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// remove detaches the client from every room it joined.
func (h *Hub) remove(c *client) {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()

	h.mu.Lock()
	for _, room := range rooms {
		if subs, ok := h.rooms[room]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARN: Websocket read error: %v", err)
			}
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Join != "" {
			c.hub.join(c, msg.Join)
		}
		if msg.Leave != "" {
			c.hub.leave(c, msg.Leave)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
