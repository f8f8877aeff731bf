package playlist

import (
	"context"

	"github.com/stretchr/testify/mock"

	"musicroom/internal/sequence"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreatePlaylist(ctx context.Context, p *Playlist) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockStore) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Playlist), args.Error(1)
}

func (m *MockStore) ListPublicPlaylists(ctx context.Context, limit, offset int) ([]Playlist, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Playlist), args.Error(1)
}

func (m *MockStore) UpdatePlaylist(ctx context.Context, id string, upd Update) (*Playlist, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Playlist), args.Error(1)
}

func (m *MockStore) AccessInfo(ctx context.Context, id string) (Access, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Access), args.Error(1)
}

func (m *MockStore) IsMember(ctx context.Context, playlistID, userID string) (bool, error) {
	args := m.Called(ctx, playlistID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ListMembers(ctx context.Context, playlistID string) ([]Member, error) {
	args := m.Called(ctx, playlistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Member), args.Error(1)
}

func (m *MockStore) AddMember(ctx context.Context, playlistID, userID string) error {
	args := m.Called(ctx, playlistID, userID)
	return args.Error(0)
}

func (m *MockStore) RemoveMember(ctx context.Context, playlistID, userID string) error {
	args := m.Called(ctx, playlistID, userID)
	return args.Error(0)
}

func (m *MockStore) PlaylistSnapshot(ctx context.Context, id string) (sequence.Sequence, int, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).(sequence.Sequence), args.Int(1), args.Error(2)
}

func (m *MockStore) SavePlaylistTracks(ctx context.Context, id string, seq sequence.Sequence) (int, error) {
	args := m.Called(ctx, id, seq)
	return args.Int(0), args.Error(1)
}

type recordingPublisher struct {
	types []string
	users []string
}

func (p *recordingPublisher) Publish(_ context.Context, typ, userID string, _ any) {
	p.types = append(p.types, typ)
	p.users = append(p.users, userID)
}
