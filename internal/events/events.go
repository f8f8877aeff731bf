// Package events publishes change notifications on the shared redis
// "broadcast" channel consumed by the realtime hub.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const Channel = "broadcast"

const (
	PlayerStateChanged    = "player.state_changed"
	PlaylistCreated       = "playlist.created"
	PlaylistUpdated       = "playlist.updated"
	PlaylistTracksChanged = "playlist.tracks_changed"
	PlaylistInvited       = "playlist.invited"
	PlaylistInviteRemoved = "playlist.invite_removed"
	QueueChanged          = "queue.changed"
)

// Event is the wire format of every message on Channel. UserID, when set,
// restricts delivery to that user's connections.
type Event struct {
	Type    string    `json:"type"`
	UserID  string    `json:"userId,omitempty"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Publisher is best effort: failures are logged, never returned, because the
// state change they describe has already been committed.
type Publisher struct {
	rdb *redis.Client
	log zerolog.Logger
	now func() time.Time
}

// New returns a Publisher. A nil client yields a Publisher that drops events.
func New(rdb *redis.Client, log zerolog.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, typ, userID string, payload any) {
	if p == nil || p.rdb == nil {
		return
	}
	data, err := json.Marshal(Event{Type: typ, UserID: userID, Payload: payload, At: p.now().UTC()})
	if err != nil {
		p.log.Error().Err(err).Str("type", typ).Msg("events: marshal event")
		return
	}
	if err := p.rdb.Publish(ctx, Channel, string(data)).Err(); err != nil {
		p.log.Warn().Err(err).Str("type", typ).Msg("events: publish event")
	}
}
