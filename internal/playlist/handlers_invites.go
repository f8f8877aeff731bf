package playlist

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"musicroom/internal/apperr"
	"musicroom/internal/events"
	"musicroom/internal/httpx"
)

// handleListInvites lists members. Anyone who can see the playlist can see
// who collaborates on it.
func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlistID := chi.URLParam(r, "id")

	if _, err := s.requireView(ctx, playlistID, httpx.UserID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	members, err := s.store.ListMembers(ctx, playlistID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}

// handleAddInvite lets the owner invite anyone and lets any user join a
// public playlist themselves.
func (s *Server) handleAddInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserID(r)
	playlistID := chi.URLParam(r, "id")

	var body struct {
		UserID string `json:"userId"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	body.UserID = strings.TrimSpace(body.UserID)
	if body.UserID == "" {
		s.fail(w, r, apperr.New(apperr.CodeInvalid, "userId is required"))
		return
	}

	rt, err := s.rightsFor(ctx, playlistID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !rt.owner && !(rt.IsPublic && body.UserID == userID) {
		s.fail(w, r, apperr.New(apperr.CodeForbidden, "forbidden"))
		return
	}

	if err := s.store.AddMember(ctx, playlistID, body.UserID); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(ctx, events.PlaylistInvited, "", map[string]any{
		"playlistId": playlistID,
		"userId":     body.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteInvite lets the owner remove anyone and members leave.
func (s *Server) handleDeleteInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserID(r)
	playlistID := chi.URLParam(r, "id")
	target := chi.URLParam(r, "userId")

	rt, err := s.rightsFor(ctx, playlistID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !rt.owner && target != userID {
		s.fail(w, r, apperr.New(apperr.CodeForbidden, "forbidden"))
		return
	}

	if err := s.store.RemoveMember(ctx, playlistID, target); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(ctx, events.PlaylistInviteRemoved, "", map[string]any{
		"playlistId": playlistID,
		"userId":     target,
	})
	w.WriteHeader(http.StatusNoContent)
}
