package playlist

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"musicroom/internal/apperr"
	"musicroom/internal/events"
	"musicroom/internal/httpx"
)

const (
	maxNameLen        = 200
	maxDescriptionLen = 1000
	defaultPageSize   = 50
	maxPageSize       = 200
)

func (s *Server) handleListPublicPlaylists(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r, defaultPageSize, maxPageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	playlists, err := s.store.ListPublicPlaylists(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, playlists)
}

// handleCreatePlaylist creates a new playlist owned by the current user.
func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		IsPublic    *bool   `json:"isPublic"`
		EditMode    *string `json:"editMode"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	pl := &Playlist{
		OwnerID:  httpx.UserID(r),
		IsPublic: true,
		EditMode: editModeEveryone,
	}
	var err error
	if pl.Name, err = cleanName(body.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	if pl.Description, err = cleanDescription(body.Description); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.IsPublic != nil {
		pl.IsPublic = *body.IsPublic
	}
	if body.EditMode != nil {
		if pl.EditMode, err = cleanEditMode(*body.EditMode); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	if err := s.store.CreatePlaylist(ctx, pl); err != nil {
		s.fail(w, r, err)
		return
	}

	var audience string
	if !pl.IsPublic {
		audience = pl.OwnerID
	}
	s.publish(ctx, events.PlaylistCreated, audience, map[string]any{"playlist": pl})
	httpx.WriteJSON(w, http.StatusCreated, pl)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlistID := chi.URLParam(r, "id")

	rt, err := s.requireView(ctx, playlistID, httpx.UserID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pl, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"playlist": pl,
		"canEdit":  rt.edit,
	})
}

// handlePatchPlaylist updates metadata and license. Only the owner can.
func (s *Server) handlePatchPlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlistID := chi.URLParam(r, "id")

	var upd Update
	if err := httpx.DecodeJSON(r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := upd.normalize(); err != nil {
		s.fail(w, r, err)
		return
	}

	rt, err := s.rightsFor(ctx, playlistID, httpx.UserID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !rt.owner {
		s.fail(w, r, apperr.New(apperr.CodeForbidden, "only the owner can change playlist details"))
		return
	}

	pl, err := s.store.UpdatePlaylist(ctx, playlistID, upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(ctx, events.PlaylistUpdated, "", map[string]any{"playlist": pl})
	httpx.WriteJSON(w, http.StatusOK, pl)
}

func (u *Update) normalize() error {
	if u.Name != nil {
		name, err := cleanName(*u.Name)
		if err != nil {
			return err
		}
		u.Name = &name
	}
	if u.Description != nil {
		desc, err := cleanDescription(*u.Description)
		if err != nil {
			return err
		}
		u.Description = &desc
	}
	if u.EditMode != nil {
		mode, err := cleanEditMode(*u.EditMode)
		if err != nil {
			return err
		}
		u.EditMode = &mode
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return "", apperr.New(apperr.CodeInvalid, "name must be between 1 and %d characters", maxNameLen)
	}
	return name, nil
}

func cleanDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if len(desc) > maxDescriptionLen {
		return "", apperr.New(apperr.CodeInvalid, "description is too long")
	}
	return desc, nil
}

func cleanEditMode(mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if !validEditMode(mode) {
		return "", apperr.New(apperr.CodeInvalid, `invalid editMode (must be "everyone" or "invited")`)
	}
	return mode, nil
}

// page reads limit and offset query parameters.
func page(r *http.Request, def, maxSize int) (limit, offset int, err error) {
	limit, offset = def, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxSize {
			return 0, 0, apperr.New(apperr.CodeInvalid, "limit must be between 1 and %d", maxSize)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, apperr.New(apperr.CodeInvalid, "offset must not be negative")
		}
	}
	return limit, offset, nil
}
