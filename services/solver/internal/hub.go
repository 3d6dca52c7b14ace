package internal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// historySize is how many recent events a newly connected client is replayed,
// enough to cover one main run and one debug run.
const historySize = 32

// Hub fans run events out to every connected UI over WebSocket.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsConn]struct{}
	history [][]byte
	bc      chan []byte
	stopped bool
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsConn]struct{}),
		bc:      make(chan []byte, 512),
	}
}

func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return nil
		case msg := <-h.bc:
			h.mu.Lock()
			h.history = append(h.history, msg)
			if len(h.history) > historySize {
				h.history = h.history[len(h.history)-historySize:]
			}
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					log.Warn().Msg("ws client too slow, disconnecting")
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop closes c's send queue, which makes its writer send a close frame so
// the UI reconnects and gets the history replayed. Callers hold h.mu.
func (h *Hub) drop(c *wsConn) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues an already wrapped event envelope.
func (h *Hub) Broadcast(b []byte) {
	select {
	case h.bc <- b:
	default:
		log.Warn().Msg("ws hub backlog full, event dropped")
	}
}

// Clients returns the number of connected UIs.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin:    func(r *http.Request) bool { return true },
	ReadBufferSize: 1024, WriteBufferSize: 8192,
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WS upgrade failed")
		return
	}
	c := &wsConn{conn: conn, send: make(chan []byte, 64+historySize)}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		return
	}
	for _, msg := range h.history {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go func() {
		ping := time.NewTicker(30 * time.Second)
		defer func() {
			ping.Stop()
			conn.Close()
		}()
		for {
			select {
			case msg, ok := <-c.send:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if !ok {
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
					return
				}
				if conn.WriteMessage(websocket.TextMessage, msg) != nil {
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if conn.WriteMessage(websocket.PingMessage, nil) != nil {
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.drop(c)
	h.mu.Unlock()
}
