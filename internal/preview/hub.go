// Package preview broadcasts live engine output to connected viewers over
// websockets: per-frame DmxCommand batches and, when a caller supplies
// them, full fixture-state snapshots, the way a lighting console streams preview data to a remote
// visualizer. Adapted from the teacher's internal/services/pubsub
// broadcast pattern and the gorilla/websocket transport wiring
// cmd/server/main.go used for its GraphQL subscriptions.
package preview

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chromaworks/lumen-engine/internal/lighting/compositor"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 64
)

// FrameCommand is the wire shape of a single DmxCommand.
type FrameCommand struct {
	Universe uint16 `json:"universe"`
	Channel  uint16 `json:"channel"`
	Value    byte   `json:"value"`
}

// Frame is one broadcast unit: a monotonic sequence number plus the
// DmxCommands an engine tick produced.
type Frame struct {
	Sequence uint64         `json:"sequence"`
	Commands []FrameCommand `json:"commands"`
}

// FixtureState is a named fixture's resolved channel values, used for the
// full-state snapshot broadcast (as opposed to the sparser
// per-tick delta frames).
type FixtureState struct {
	Name     string         `json:"name"`
	Universe uint16         `json:"universe"`
	Channels map[string]int `json:"channels"`
}

// Snapshot is a full fixture-state broadcast, sent to every connected
// client each time BroadcastSnapshot is called. The hub sends none on
// client connect and none on a schedule of its own.
type Snapshot struct {
	Fixtures []FixtureState `json:"fixtures"`
}

type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// client is one connected viewer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected viewers and fans out frames/snapshots to all of
// them. The zero value is not usable; construct with NewHub.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	sequence uint64

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewHub creates a Hub. Call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 16),
	}
}

// Run processes registrations and broadcasts until ctx-independent Stop is
// never needed: the hub lives for the process lifetime, same as the
// teacher's DMX transmit loop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow consumer, drop the frame rather than block the hub
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastFrame publishes one engine tick's commands to every connected
// viewer. Safe to call from the engine's tick goroutine; never blocks.
func (h *Hub) BroadcastFrame(cmds []compositor.DmxCommand) {
	h.mu.Lock()
	h.sequence++
	seq := h.sequence
	h.mu.Unlock()

	out := make([]FrameCommand, len(cmds))
	for i, c := range cmds {
		out[i] = FrameCommand{Universe: c.Universe, Channel: c.Channel, Value: c.Value}
	}

	h.publish("frame", Frame{Sequence: seq, Commands: out})
}

// BroadcastSnapshot publishes a full fixture-state snapshot, e.g. on a
// slower periodic tick than per-frame deltas.
func (h *Hub) BroadcastSnapshot(snap Snapshot) {
	h.publish("snapshot", snap)
}

func (h *Hub) publish(kind string, data interface{}) {
	b, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		log.Printf("preview: failed to encode %s: %v", kind, err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		log.Printf("preview: broadcast channel full, dropping %s", kind)
	}
}

// ClientCount returns the number of currently connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a websocket and registers the
// resulting client with the hub until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("preview: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

// readPump drains and discards client messages (viewers are read-only);
// its real job is detecting disconnects via read errors.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
