package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"musicroom/internal/events"
	"musicroom/internal/httpx"
)

type Server struct {
	hub      *Hub
	rdb      *redis.Client
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer accepts websocket handshakes from allowedOrigin, or from any
// origin when it is empty.
func NewServer(hub *Hub, rdb *redis.Client, allowedOrigin string, log zerolog.Logger) *Server {
	return &Server{
		hub: hub,
		rdb: rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
		log: log,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/", s.handleWS)

	return r
}

// RunRedisSubscriber forwards every message on the broadcast channel to the
// hub until ctx is done. It returns once the subscription fails or ends.
func (s *Server) RunRedisSubscriber(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, events.Channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so no event published after
	// this point is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", events.Channel, err)
	}
	s.log.Info().Str("channel", events.Channel).Msg("realtime: subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.hub.Broadcast(ctx, []byte(msg.Payload))
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		s.log.Debug().Err(err).Msg("realtime: ws upgrade")
		return
	}

	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: httpx.UserID(r),
	}

	welcome := map[string]any{
		"type":   "welcome",
		"userId": client.userID,
		"now":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	if !s.hub.add(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
