// Package realtime fans events from the redis broadcast channel out to
// websocket clients.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"musicroom/internal/metrics"
)

// envelope is the part of an event the hub routes on.
type envelope struct {
	UserID string `json:"userId"`
}

// Hub owns the set of connected clients. Only Run touches the map.
type Hub struct {
	clients map[*Client]bool

	// Inbound events from redis.
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewHub(m *metrics.Metrics, log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
		log:        log,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.metrics.ClientConnected()

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}

		case msg := <-h.broadcast:
			var env envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				h.log.Warn().Err(err).Msg("realtime: dropping malformed event")
				continue
			}
			for c := range h.clients {
				if env.UserID != "" && env.UserID != c.userID {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Slow consumer.
					h.drop(c)
				}
			}
		}
	}
}

// Broadcast hands msg to Run. It blocks until Run accepts it, ctx is done or
// the hub stops.
func (h *Hub) Broadcast(ctx context.Context, msg []byte) {
	select {
	case h.broadcast <- msg:
	case <-ctx.Done():
	case <-h.done:
	}
}

// add registers c. It reports false once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
	h.metrics.ClientDisconnected()
}
