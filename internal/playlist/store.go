package playlist

import (
	"context"

	"musicroom/internal/sequence"
)

// Store is the persistence the playlist handlers need. Missing playlists are
// reported as apperr.NotFound.
type Store interface {
	CreatePlaylist(ctx context.Context, p *Playlist) error
	GetPlaylist(ctx context.Context, id string) (*Playlist, error)
	ListPublicPlaylists(ctx context.Context, limit, offset int) ([]Playlist, error)
	UpdatePlaylist(ctx context.Context, id string, upd Update) (*Playlist, error)

	AccessInfo(ctx context.Context, id string) (Access, error)
	IsMember(ctx context.Context, playlistID, userID string) (bool, error)
	ListMembers(ctx context.Context, playlistID string) ([]Member, error)
	AddMember(ctx context.Context, playlistID, userID string) error
	RemoveMember(ctx context.Context, playlistID, userID string) error

	PlaylistSnapshot(ctx context.Context, id string) (sequence.Sequence, int, error)
	SavePlaylistTracks(ctx context.Context, id string, seq sequence.Sequence) (int, error)
}
