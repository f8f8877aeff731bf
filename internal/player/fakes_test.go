package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"musicroom/internal/apperr"
	"musicroom/internal/catalog"
	"musicroom/internal/device"
	"musicroom/internal/lock"
	"musicroom/internal/sequence"
	"musicroom/internal/session"
)

// memStore is an in-memory Store that also serves the catalog.
type memStore struct {
	mu        sync.Mutex
	sessions  map[string]session.Session
	devices   map[string][]device.Device
	queues    map[string]sequence.Sequence
	albums    map[string]sequence.Sequence
	playlists map[string]sequence.Sequence
	// private maps a private playlist to its owner.
	private map[string]string

	sessionSaves int
	failSave     error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  map[string]session.Session{},
		devices:   map[string][]device.Device{},
		queues:    map[string]sequence.Sequence{},
		albums:    map[string]sequence.Sequence{},
		playlists: map[string]sequence.Sequence{},
		private:   map[string]string{},
	}
}

func (m *memStore) LoadSession(_ context.Context, userID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	s.ShuffleOrder = append([]int(nil), s.ShuffleOrder...)
	return &s, nil
}

func (m *memStore) SaveSession(_ context.Context, userID string, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.sessionSaves++
	m.sessions[userID] = s
	return nil
}

func (m *memStore) LoadDevices(_ context.Context, userID string) ([]device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]device.Device{}, m.devices[userID]...), nil
}

func (m *memStore) SaveDevices(_ context.Context, userID string, ds []device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[userID] = append([]device.Device{}, ds...)
	return nil
}

func (m *memStore) QueueTracks(_ context.Context, userID string) (sequence.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[userID]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "queue %s not found", userID)
	}
	return q.Clone(), nil
}

func (m *memStore) SaveQueue(_ context.Context, userID string, seq sequence.Sequence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[userID] = seq.Clone()
	return nil
}

func (m *memStore) lookup(table map[string]sequence.Sequence, kind string) catalog.SourceFunc {
	return func(_ context.Context, id string) (sequence.Sequence, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		seq, ok := table[id]
		if !ok {
			return nil, apperr.New(apperr.CodeNotFound, "%s %s not found", kind, id)
		}
		return seq.Clone(), nil
	}
}

func (m *memStore) resolver() *catalog.Resolver {
	return catalog.NewResolver(map[session.ContextType]catalog.Source{
		session.ContextAlbum:    m.lookup(m.albums, "album"),
		session.ContextPlaylist: m.lookup(m.playlists, "playlist"),
		session.ContextQueue:    catalog.SourceFunc(m.QueueTracks),
	})
}

func (m *memStore) CanView(_ context.Context, playlistID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.playlists[playlistID]; !ok {
		return apperr.New(apperr.CodeNotFound, "playlist %s not found", playlistID)
	}
	if owner, ok := m.private[playlistID]; ok && owner != userID {
		return apperr.New(apperr.CodeForbidden, "playlist is private")
	}
	return nil
}

func (m *memStore) setPlaylist(id string, seq sequence.Sequence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlists[id] = seq
}

func (m *memStore) sessionOf(userID string) session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

type published struct {
	typ    string
	userID string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, typ, userID string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{typ: typ, userID: userID})
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	store  *memStore
	locker *lock.Local
	pub    *recordingPublisher
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newMemStore()
	st.albums["a1"] = sequence.Sequence{"t0", "t1", "t2", "t3"}
	st.albums["empty"] = sequence.Sequence{}
	st.playlists["p1"] = sequence.Sequence{"p0", "p1", "p2", "p3", "p4"}

	locker := lock.NewLocal(lock.Options{TTL: time.Second, Retries: 2, RetryDelay: time.Millisecond})
	pub := &recordingPublisher{}
	svc := NewService(st, st.resolver(), locker,
		WithPlaylistAccess(st),
		WithPublisher(pub),
		WithShuffler(session.SeededShuffler(7)),
		WithClock(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }),
	)
	return &fixture{store: st, locker: locker, pub: pub, svc: svc}
}

func albumRef(id string) *session.ContextRef {
	return &session.ContextRef{Type: session.ContextAlbum, ID: id}
}

func playlistRef(id string) *session.ContextRef {
	return &session.ContextRef{Type: session.ContextPlaylist, ID: id}
}
