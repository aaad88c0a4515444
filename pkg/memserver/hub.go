package memserver

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/memwatch/pkg/monitor"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

const (
	MessageSample = "sample"
	MessageGC     = "gc"
	MessageReset  = "reset"
)

// Message is the envelope of everything written to stream clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub fans monitor output out to websocket clients. It never blocks the
// monitor: messages are dropped when the hub is behind, and clients that
// cannot keep up are disconnected.
type Hub struct {
	clients    map[*streamClient]bool
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan []byte
	count      atomic.Int32
	upgrader   websocket.Upgrader
}

var (
	_ monitor.Sink        = (*Hub)(nil)
	_ monitor.GCEventSink = (*Hub)(nil)
	_ monitor.ResetSink   = (*Hub)(nil)
)

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*streamClient]bool),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan []byte, sendBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run dispatches messages until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
			log.WithField("clients", len(h.clients)).Debug("stream client connected")

		case c := <-h.unregister:
			h.remove(c)

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					log.Warn("stream client is too slow, disconnecting")
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *streamClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
	log.WithField("clients", len(h.clients)).Debug("stream client disconnected")
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func (h *Hub) OnSample(s monitor.Snapshot) {
	h.publish(MessageSample, s)
}

func (h *Hub) OnGCEvent(e monitor.GCEvent) {
	h.publish(MessageGC, e)
}

func (h *Hub) OnReset() {
	h.publish(MessageReset, nil)
}

func (h *Hub) publish(kind string, payload interface{}) {
	msg := Message{Type: kind}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.WithError(err).WithField("type", kind).Error("failed to encode stream message")
			return
		}
		msg.Payload = b
	}

	b, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).WithField("type", kind).Error("failed to encode stream message")
		return
	}

	select {
	case h.broadcast <- b:
	default:
		log.WithField("type", kind).Debug("stream hub is behind, dropping message")
	}
}

// ServeWS upgrades the request and streams messages until the client goes
// away or the hub stops.
func (h *Hub) ServeWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("failed to upgrade stream connection")
		return
	}

	c := &streamClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-ctx.Done():
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(ctx)
}

type streamClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump only handles control frames; clients never send data.
func (c *streamClient) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
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

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
