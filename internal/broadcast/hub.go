// Package broadcast fans out dispatcher metrics snapshots to websocket
// subscribers, keyed by test-id. Adapted from the teacher's
// internal/websocket hub (register/unregister/broadcast actor loop) to a
// per-test-id subscriber set, matching the subscribe/unsubscribe/ping
// contract of the admission layer's websocket surface.
package broadcast

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Publisher is the narrow interface the dispatcher depends on, so tests can
// substitute a recording fake without spinning up real websocket clients.
type Publisher interface {
	Broadcast(testID string, payload map[string]any)
}

const idlePingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type registration struct {
	client     *client
	testID     string
	disconnect bool
}

// Hub owns the per-test-id subscriber sets and the register/unregister/
// broadcast actor loop.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*client]bool

	register   chan registration
	unregister chan registration
	broadcast  chan broadcastMsg
}

type broadcastMsg struct {
	testID  string
	payload map[string]any
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan map[string]any
	testID  string
	mu      sync.Mutex
}

// NewHub builds an unstarted Hub; call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*client]bool),
		register:    make(chan registration),
		unregister:  make(chan registration),
		broadcast:   make(chan broadcastMsg, 256),
	}
}

// Run is the hub's single-goroutine actor loop.
func (h *Hub) Run() {
	for {
		select {
		case reg := <-h.register:
			h.mu.Lock()
			if h.subscribers[reg.testID] == nil {
				h.subscribers[reg.testID] = make(map[*client]bool)
			}
			h.subscribers[reg.testID][reg.client] = true
			h.mu.Unlock()

		case reg := <-h.unregister:
			h.mu.Lock()
			present := false
			if set, ok := h.subscribers[reg.testID]; ok {
				if _, present = set[reg.client]; present {
					delete(set, reg.client)
					if len(set) == 0 {
						delete(h.subscribers, reg.testID)
					}
				}
			}
			h.mu.Unlock()
			// A client dropped for a full buffer was already removed and closed.
			if reg.disconnect && present {
				close(reg.client.send)
			}

		case msg := <-h.broadcast:
			h.mu.Lock()
			set := h.subscribers[msg.testID]
			for c := range set {
				select {
				case c.send <- msg.payload:
				default:
					// Slow client: drop it here rather than blocking the loop.
					delete(set, c)
					close(c.send)
				}
			}
			if set != nil && len(set) == 0 {
				delete(h.subscribers, msg.testID)
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast is non-blocking: if the hub's internal buffer is full the
// snapshot is dropped rather than stalling the dispatcher.
func (h *Hub) Broadcast(testID string, payload map[string]any) {
	select {
	case h.broadcast <- broadcastMsg{testID: testID, payload: payload}:
	default:
		logrus.WithField("test_id", testID).Warn("broadcast buffer full, dropping metrics snapshot")
	}
}

// HandleWebSocket upgrades the connection and runs the subscribe/
// unsubscribe/ping protocol until the client disconnects.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithField("error", err).Error("websocket upgrade failed")
		return
	}

	cl := &client{hub: h, conn: conn, send: make(chan map[string]any, 64)}
	go cl.writePump()
	cl.readLoop()
}

func (c *client) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteJSON(payload); err != nil {
			return
		}
	}
}

func (c *client) readLoop() {
	var currentTestID string
	defer func() {
		if currentTestID != "" {
			c.hub.unregister <- registration{client: c, testID: currentTestID, disconnect: true}
		}
		c.conn.Close()
	}()

	for {
		c.conn.SetReadDeadline(time.Now().Add(idlePingInterval))
		var msg map[string]any
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.sendSafe(map[string]any{"type": "ping"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("error", err).Warn("websocket read error")
			}
			return
		}
		currentTestID = c.handleMessage(msg, currentTestID)
	}
}

func (c *client) handleMessage(msg map[string]any, currentTestID string) string {
	msgType, _ := msg["type"].(string)
	switch msgType {
	case "subscribe":
		testID, ok := msg["test_id"].(string)
		if !ok {
			c.sendSafe(map[string]any{"type": "error", "message": "test_id is required"})
			return currentTestID
		}
		if currentTestID != "" {
			c.hub.unregister <- registration{client: c, testID: currentTestID}
		}
		c.hub.register <- registration{client: c, testID: testID}
		c.sendSafe(map[string]any{"type": "subscribed", "test_id": testID})
		return testID

	case "unsubscribe":
		if currentTestID != "" {
			c.hub.unregister <- registration{client: c, testID: currentTestID}
			c.sendSafe(map[string]any{"type": "unsubscribed", "test_id": currentTestID})
		}
		return ""

	case "ping":
		c.sendSafe(map[string]any{"type": "pong"})
		return currentTestID

	default:
		c.sendSafe(map[string]any{"type": "error", "message": "unknown message type: " + msgType})
		return currentTestID
	}
}

func (c *client) sendSafe(payload map[string]any) {
	select {
	case c.send <- payload:
	default:
		logrus.Warn("client send buffer full, dropping control message")
	}
}
