package playlist

import (
	"context"

	"musicroom/internal/apperr"
)

// rights is what a user may do with one playlist.
type rights struct {
	Access
	invited bool
	view    bool
	edit    bool
	owner   bool
}

// AccessStore is the part of Store the visibility rules read.
type AccessStore interface {
	AccessInfo(ctx context.Context, id string) (Access, error)
	IsMember(ctx context.Context, playlistID, userID string) (bool, error)
}

// rightsFor applies the visibility and edit rules:
//   - public playlists are visible to everyone, private ones to the owner and
//     invited users;
//   - the owner can always edit; with editMode "everyone" any signed-in user
//     who can see the playlist can edit, with "invited" only members can.
func rightsFor(ctx context.Context, st AccessStore, playlistID, userID string) (rights, error) {
	a, err := st.AccessInfo(ctx, playlistID)
	if err != nil {
		return rights{}, err
	}
	rt := rights{Access: a, owner: userID != "" && userID == a.OwnerID}
	if userID != "" && !rt.owner {
		rt.invited, err = st.IsMember(ctx, playlistID, userID)
		if err != nil {
			return rights{}, err
		}
	}

	rt.view = a.IsPublic || rt.owner || rt.invited
	switch {
	case rt.owner:
		rt.edit = true
	case userID == "" || !rt.view:
		rt.edit = false
	case a.EditMode == editModeInvited:
		rt.edit = rt.invited
	default:
		rt.edit = true
	}
	return rt, nil
}

func (s *Server) rightsFor(ctx context.Context, playlistID, userID string) (rights, error) {
	return rightsFor(ctx, s.store, playlistID, userID)
}

// Viewer answers visibility questions for callers outside the HTTP handlers,
// such as playback starting a playlist context.
type Viewer struct {
	store AccessStore
}

func NewViewer(st AccessStore) *Viewer {
	return &Viewer{store: st}
}

// CanView returns nil when userID may see the playlist, apperr Forbidden when
// it is private to them and apperr NotFound when it does not exist.
func (v *Viewer) CanView(ctx context.Context, playlistID, userID string) error {
	rt, err := rightsFor(ctx, v.store, playlistID, userID)
	if err != nil {
		return err
	}
	if !rt.view {
		return apperr.New(apperr.CodeForbidden, "playlist is private")
	}
	return nil
}

func (s *Server) requireView(ctx context.Context, playlistID, userID string) (rights, error) {
	rt, err := s.rightsFor(ctx, playlistID, userID)
	if err != nil {
		return rt, err
	}
	if !rt.view {
		return rt, apperr.New(apperr.CodeForbidden, "playlist is private")
	}
	return rt, nil
}

func (s *Server) requireEdit(ctx context.Context, playlistID, userID string) (rights, error) {
	rt, err := s.requireView(ctx, playlistID, userID)
	if err != nil {
		return rt, err
	}
	if !rt.edit {
		return rt, apperr.New(apperr.CodeForbidden, "you cannot edit this playlist")
	}
	return rt, nil
}
