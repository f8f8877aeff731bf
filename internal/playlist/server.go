// Package playlist serves playlist metadata, collaborator invites and track
// editing. Track edits run through the sequence engine under a per-playlist
// lock and bump the playlist's snapshot.
package playlist

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"musicroom/internal/httpx"
	"musicroom/internal/lock"
	"musicroom/internal/metrics"
)

type Publisher interface {
	Publish(ctx context.Context, typ, userID string, payload any)
}

type Server struct {
	store   Store
	locker  lock.Locker
	events  Publisher
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewServer(store Store, locker lock.Locker, events Publisher, m *metrics.Metrics, log zerolog.Logger) *Server {
	return &Server{
		store:   store,
		locker:  locker,
		events:  events,
		metrics: m,
		log:     log,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/playlists", s.handleListPublicPlaylists)
	r.Get("/playlists/{id}", s.handleGetPlaylist)
	r.Get("/playlists/{id}/tracks", s.handleGetTracks)

	r.Group(func(r chi.Router) {
		r.Use(httpx.CurrentUser)

		r.Post("/playlists", s.handleCreatePlaylist)
		r.Patch("/playlists/{id}", s.handlePatchPlaylist)

		r.Post("/playlists/{id}/tracks", s.handleAddTracks)
		r.Put("/playlists/{id}/tracks", s.handleUpdateTracks)
		r.Delete("/playlists/{id}/tracks", s.handleRemoveTracks)

		r.Get("/playlists/{id}/invites", s.handleListInvites)
		r.Post("/playlists/{id}/invites", s.handleAddInvite)
		r.Delete("/playlists/{id}/invites/{userId}", s.handleDeleteInvite)
	})

	return r
}

// publish sends an event to every connection, or only to userID's when set.
func (s *Server) publish(ctx context.Context, typ, userID string, payload any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, typ, userID, payload)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteAppError(w, s.log, r, err)
}
