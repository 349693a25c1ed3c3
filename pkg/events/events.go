// Package events exposes a live feed of decode/broadcast activity over a
// websocket, plus the debug HTTP endpoints the spec's raw_decode and
// raw_listen operations need (spec.md section 6's "external debug
// interface"). Adapted from the teacher's pkg/web/websocket.go: the same
// Event/Client/Hub shape, re-keyed from DMR peer/bridge events to BLE
// frame/command events.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kbable/ble-adv-bridge/pkg/logger"
)

// Event is one message pushed to every connected websocket client.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Marshal encodes the event as JSON, for the broadcast channel.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Client is one connected websocket subscriber.
type Client struct {
	id       string
	conn     *websocket.Conn
	messages chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans Events out to every connected Client, the same register/
// unregister/broadcast-channel pattern as the teacher's WebSocketHub.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
}

// NewHub returns a Hub ready to Run.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.WithComponent("events"),
	}
}

// Run drives the hub's register/unregister/broadcast loop until ctx is
// cancelled by the caller closing done.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.messages)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.messages)
			}
			h.mu.Unlock()

		case evt := <-h.broadcast:
			payload, err := evt.Marshal()
			if err != nil {
				h.log.Error("marshal event failed", logger.Error(err))
				continue
			}
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.messages <- payload:
				default:
					h.log.Warn("client send buffer full, dropping", logger.String("client", c.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues an event for delivery to every connected client.
func (h *Hub) Broadcast(evt Event) {
	select {
	case h.broadcast <- evt:
	default:
		h.log.Warn("broadcast channel full, dropping event", logger.String("type", evt.Type))
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades an HTTP request to a websocket and streams broadcast
// events to it until the connection closes.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Error("websocket upgrade failed", logger.Error(err))
			return
		}

		client := &Client{id: uuid.NewString(), conn: conn, messages: make(chan []byte, 64)}
		h.register <- client

		go h.writeLoop(client)
		h.readLoop(client)
	}
}

func (h *Hub) readLoop(c *Client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *Client) {
	defer c.conn.Close()
	for msg := range c.messages {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// FrameDecoded builds the event broadcast whenever the listener (C7)
// successfully decodes an incoming advertisement into a GenCmd.
func FrameDecoded(codecID string, cmd string, entityType string, entityIndex uint8) Event {
	return Event{
		Type:      "frame_decoded",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"codec":        codecID,
			"cmd":          cmd,
			"entity_type":  entityType,
			"entity_index": entityIndex,
		},
	}
}

// FrameSent builds the event broadcast whenever a controller enqueues a
// broadcast item (at enqueue time, before the scheduler puts it on air).
func FrameSent(controllerLabel string, cmd string) Event {
	return Event{
		Type:      "frame_sent",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"controller": controllerLabel,
			"cmd":        cmd,
		},
	}
}

// DecodeFailed builds the event broadcast when a raw advertisement was
// scanned but no registered codec could decode it.
func DecodeFailed(reason string) Event {
	return Event{
		Type:      "decode_failed",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"reason": reason,
		},
	}
}
