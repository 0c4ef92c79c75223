// Package ws implements the realtime push hub. Connected admin dashboards
// receive reservation and stock events as JSON frames.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// frame is the wire format pushed to clients.
type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	At    string      `json:"at"`
}

// Hub maintains the set of active connections and broadcasts events to
// them. A slow client whose send buffer fills up is dropped rather than
// allowed to stall the broadcast loop.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	log        zerolog.Logger

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewHub returns a hub ready for Run.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		log:        log.With().Str("component", "ws-hub").Logger(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run processes registration and broadcast traffic until Stop is called.
// It must run in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug().Int("clients", len(h.clients)).Msg("client registered")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		case <-h.stop:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}
}

// Stop shuts down the broadcast loop and disconnects all clients.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		close(h.stop)
	}
	h.mu.Unlock()
	<-h.done
}

// Publish broadcasts an event to all connected clients. It never blocks:
// if the broadcast queue is full the event is dropped and logged.
func (h *Hub) Publish(event string, payload interface{}) {
	body, err := json.Marshal(frame{Event: event, Data: payload, At: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal event failed")
		return
	}
	select {
	case h.broadcast <- body:
	default:
		h.log.Warn().Str("event", event).Msg("broadcast queue full, event dropped")
	}
}

// ServeWS upgrades an HTTP request to a websocket connection and attaches
// it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register <- c
	go c.writePump()
	go c.readPump()
	return nil
}

// client represents one websocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// writePump forwards queued frames to the connection and keeps it alive
// with periodic pings.
func (c *client) writePump() {
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

// readPump drains incoming messages (pongs and client chatter) until the
// connection drops, then unregisters the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
