// Package player orchestrates playback sessions. Every mutating operation
// runs under the user's player lock: load, resolve the context, revalidate,
// apply one pure transition, persist, release, then publish.
package player

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"musicroom/internal/apperr"
	"musicroom/internal/device"
	"musicroom/internal/events"
	"musicroom/internal/lock"
	"musicroom/internal/metrics"
	"musicroom/internal/sequence"
	"musicroom/internal/session"
)

// Store persists per-user sessions, device lists and ad-hoc queues.
type Store interface {
	LoadSession(ctx context.Context, userID string) (*session.Session, error)
	SaveSession(ctx context.Context, userID string, s session.Session) error
	LoadDevices(ctx context.Context, userID string) ([]device.Device, error)
	SaveDevices(ctx context.Context, userID string, devices []device.Device) error
	QueueTracks(ctx context.Context, userID string) (sequence.Sequence, error)
	SaveQueue(ctx context.Context, userID string, seq sequence.Sequence) error
}

type Resolver interface {
	Resolve(ctx context.Context, ref session.ContextRef) (sequence.Sequence, error)
}

// PlaylistAccess decides whether a user may play a playlist. It returns nil,
// or an apperr Forbidden or NotFound error.
type PlaylistAccess interface {
	CanView(ctx context.Context, playlistID, userID string) error
}

type Publisher interface {
	Publish(ctx context.Context, typ, userID string, payload any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) {}

type Service struct {
	store    Store
	resolver Resolver
	access   PlaylistAccess
	locker   lock.Locker
	events   Publisher
	metrics  *metrics.Metrics
	log      zerolog.Logger
	shuffle  session.Shuffler
	now      func() time.Time
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

func WithPlaylistAccess(a PlaylistAccess) Option { return func(s *Service) { s.access = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

func WithShuffler(f session.Shuffler) Option { return func(s *Service) { s.shuffle = f } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, resolver Resolver, locker lock.Locker, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		locker:   locker,
		events:   nopPublisher{},
		log:      zerolog.Nop(),
		shuffle:  session.RandomShuffler(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// txn is the state one locked operation works on.
type txn struct {
	userID  string
	sess    session.Session
	seq     sequence.Sequence
	devices []device.Device

	devicesChanged bool
}

func (t *txn) n() int { return t.seq.Len() }

// load reads the user's session and devices and revalidates the session
// against the current length of its context.
func (s *Service) load(ctx context.Context, userID string) (*txn, session.Session, error) {
	stored, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return nil, session.Session{}, err
	}
	sess := session.New(userID)
	if stored != nil {
		sess = *stored
	}
	devices, err := s.store.LoadDevices(ctx, userID)
	if err != nil {
		return nil, session.Session{}, err
	}

	t := &txn{userID: userID, sess: sess, devices: devices}
	if sess.Started() {
		seq, err := s.resolveCurrent(ctx, sess.Context)
		if err != nil {
			return nil, session.Session{}, err
		}
		t.seq = seq
		t.sess = sess.Revalidate(seq.Len(), s.shuffle)
	}
	return t, sess, nil
}

// resolveCurrent treats a context that disappeared as empty so the session
// can still be revalidated and stopped.
func (s *Service) resolveCurrent(ctx context.Context, ref session.ContextRef) (sequence.Sequence, error) {
	seq, err := s.resolver.Resolve(ctx, ref)
	if errors.Is(err, apperr.NotFound) {
		return sequence.Sequence{}, nil
	}
	return seq, err
}

// update runs fn under the user's player lock. fn must leave t.sess
// untouched when it fails; the revalidated session is still persisted.
func (s *Service) update(ctx context.Context, op, userID string, fn func(ctx context.Context, t *txn) error) (st State, err error) {
	start := s.now()
	defer func() { s.metrics.Observe(op, start, err) }()

	release, err := s.locker.Acquire(ctx, lock.PlayerKey(userID))
	if err != nil {
		if errors.Is(err, apperr.Conflict) {
			s.metrics.Conflict("player")
		}
		return State{}, err
	}

	t, changed, err := s.apply(ctx, userID, fn)
	release()
	if changed {
		s.events.Publish(ctx, events.PlayerStateChanged, userID, project(t))
	}
	if err != nil {
		return State{}, err
	}
	return project(t), nil
}

func (s *Service) apply(ctx context.Context, userID string, fn func(ctx context.Context, t *txn) error) (*txn, bool, error) {
	t, loaded, err := s.load(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	opErr := fn(ctx, t)

	changed := false
	if !sameSession(loaded, t.sess) {
		t.sess.UpdatedAt = s.now().UTC()
		if err := s.store.SaveSession(ctx, userID, t.sess); err != nil {
			return nil, false, err
		}
		changed = true
	}
	if t.devicesChanged {
		if err := s.store.SaveDevices(ctx, userID, t.devices); err != nil {
			return nil, false, err
		}
		changed = true
	}
	if opErr != nil {
		s.log.Debug().Err(opErr).Str("user", userID).Msg("player: operation rejected")
	}
	return t, changed, opErr
}

func sameSession(a, b session.Session) bool {
	return a.OwnerID == b.OwnerID &&
		a.Context == b.Context &&
		a.Position == b.Position &&
		a.Paused == b.Paused &&
		a.Shuffle == b.Shuffle &&
		a.Repeat == b.Repeat &&
		a.ProgressMs == b.ProgressMs &&
		slices.Equal(a.ShuffleOrder, b.ShuffleOrder)
}

// PlayRequest starts a new context. A nil Context resumes the current one.
type PlayRequest struct {
	Context  *session.ContextRef
	Offset   int
	DeviceID string
}

func (s *Service) Play(ctx context.Context, userID string, req PlayRequest) (State, error) {
	return s.update(ctx, "play", userID, func(ctx context.Context, t *txn) error {
		devices := t.devices
		if req.DeviceID != "" {
			var err error
			if devices, err = device.Transfer(t.devices, req.DeviceID); err != nil {
				return err
			}
		}

		var (
			next session.Session
			seq  = t.seq
			err  error
		)
		if req.Context == nil {
			next, err = t.sess.Resume(t.n())
		} else {
			next, seq, err = s.playContext(ctx, userID, t.sess, *req.Context, req.Offset)
		}
		if err != nil {
			return err
		}
		t.sess, t.seq = next, seq
		if req.DeviceID != "" {
			t.devices, t.devicesChanged = devices, true
		}
		return nil
	})
}

func (s *Service) playContext(ctx context.Context, userID string, cur session.Session, ref session.ContextRef, offset int) (session.Session, sequence.Sequence, error) {
	if err := ref.Validate(); err != nil {
		return cur, nil, err
	}
	if offset < 0 {
		return cur, nil, apperr.New(apperr.CodeOutOfRange, "offset must not be negative")
	}
	if err := s.authorize(ctx, userID, ref); err != nil {
		return cur, nil, err
	}
	seq, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		return cur, nil, err
	}
	next, err := cur.Play(ref, seq.Len(), offset, s.shuffle)
	if err != nil {
		return cur, nil, err
	}
	return next, seq, nil
}

// authorize checks that userID may start ref. Queues belong to the user they
// are keyed by; playlists follow the playlist visibility rules.
func (s *Service) authorize(ctx context.Context, userID string, ref session.ContextRef) error {
	switch ref.Type {
	case session.ContextQueue:
		if ref.ID != userID {
			return apperr.New(apperr.CodeForbidden, "queue belongs to another user")
		}
	case session.ContextPlaylist:
		if s.access != nil {
			return s.access.CanView(ctx, ref.ID, userID)
		}
	}
	return nil
}

func (s *Service) Pause(ctx context.Context, userID string) (State, error) {
	return s.update(ctx, "pause", userID, func(_ context.Context, t *txn) error {
		t.sess = t.sess.Pause()
		return nil
	})
}

func (s *Service) Resume(ctx context.Context, userID string) (State, error) {
	return s.update(ctx, "resume", userID, func(_ context.Context, t *txn) error {
		next, err := t.sess.Resume(t.n())
		if err != nil {
			return err
		}
		t.sess = next
		return nil
	})
}

func (s *Service) Seek(ctx context.Context, userID string, positionMs int64) (State, error) {
	return s.update(ctx, "seek", userID, func(_ context.Context, t *txn) error {
		next, err := t.sess.Seek(t.n(), positionMs)
		if err != nil {
			return err
		}
		t.sess = next
		return nil
	})
}

func (s *Service) Next(ctx context.Context, userID string) (State, error) {
	return s.update(ctx, "next", userID, func(_ context.Context, t *txn) error {
		next, err := t.sess.Next(t.n())
		if err != nil {
			return err
		}
		t.sess = next
		return nil
	})
}

func (s *Service) Previous(ctx context.Context, userID string) (State, error) {
	return s.update(ctx, "previous", userID, func(_ context.Context, t *txn) error {
		next, err := t.sess.Previous(t.n())
		if err != nil {
			return err
		}
		t.sess = next
		return nil
	})
}

func (s *Service) SetShuffle(ctx context.Context, userID string, on bool) (State, error) {
	return s.update(ctx, "shuffle", userID, func(_ context.Context, t *txn) error {
		next, err := t.sess.SetShuffle(t.n(), on, s.shuffle)
		if err != nil {
			return err
		}
		t.sess = next
		return nil
	})
}

func (s *Service) SetRepeat(ctx context.Context, userID string, mode session.RepeatMode) (State, error) {
	return s.update(ctx, "repeat", userID, func(_ context.Context, t *txn) error {
		next, err := t.sess.SetRepeat(mode)
		if err != nil {
			return err
		}
		t.sess = next
		return nil
	})
}

// Transfer makes deviceID the only active device. With play set, playback
// resumes on it when there is something to play.
func (s *Service) Transfer(ctx context.Context, userID, deviceID string, play bool) (State, error) {
	return s.update(ctx, "transfer", userID, func(_ context.Context, t *txn) error {
		devices, err := device.Transfer(t.devices, deviceID)
		if err != nil {
			return err
		}
		t.devices, t.devicesChanged = devices, true
		if play && t.n() > 0 {
			next, err := t.sess.Resume(t.n())
			if err != nil {
				return err
			}
			t.sess = next
		}
		return nil
	})
}

// SetVolume targets deviceID, or the active device when it is empty.
func (s *Service) SetVolume(ctx context.Context, userID, deviceID string, volume int) (State, error) {
	return s.update(ctx, "volume", userID, func(_ context.Context, t *txn) error {
		id := deviceID
		if id == "" {
			active, ok := device.Active(t.devices)
			if !ok {
				return apperr.New(apperr.CodeNotFound, "no active device")
			}
			id = active.ID
		}
		devices, err := device.SetVolume(t.devices, id, volume)
		if err != nil {
			return err
		}
		t.devices, t.devicesChanged = devices, true
		return nil
	})
}

func (s *Service) RegisterDevice(ctx context.Context, userID string, d device.Device) ([]device.Device, error) {
	st, err := s.update(ctx, "register_device", userID, func(_ context.Context, t *txn) error {
		devices, err := device.Register(t.devices, d)
		if err != nil {
			return err
		}
		t.devices, t.devicesChanged = devices, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.Devices, nil
}

func (s *Service) Devices(ctx context.Context, userID string) ([]device.Device, error) {
	devices, err := s.store.LoadDevices(ctx, userID)
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// State reads the current projection without taking the lock. The
// revalidation it applies is not persisted.
func (s *Service) State(ctx context.Context, userID string) (State, error) {
	t, _, err := s.load(ctx, userID)
	if err != nil {
		return State{}, err
	}
	return project(t), nil
}

// QueueView lists what plays next in the current context.
type QueueView struct {
	Current  *sequence.TrackRef  `json:"currentlyPlaying"`
	Upcoming []sequence.TrackRef `json:"queue"`
}

const queueViewLimit = 20

func (s *Service) Queue(ctx context.Context, userID string) (QueueView, error) {
	t, _, err := s.load(ctx, userID)
	if err != nil {
		return QueueView{}, err
	}
	view := QueueView{Upcoming: []sequence.TrackRef{}}
	if ref, ok := t.seq.At(t.sess.CurrentIndex()); ok {
		view.Current = &ref
	}
	for _, i := range t.sess.Upcoming(t.n(), queueViewLimit) {
		if ref, ok := t.seq.At(i); ok {
			view.Upcoming = append(view.Upcoming, ref)
		}
	}
	return view, nil
}

// AddToQueue appends uri to the user's ad-hoc queue. It holds only the queue
// lock; a session playing the queue picks up the new length on its next
// operation.
func (s *Service) AddToQueue(ctx context.Context, userID string, uri sequence.TrackRef) (n int, err error) {
	start := s.now()
	defer func() { s.metrics.Observe("add_to_queue", start, err) }()

	release, err := s.locker.Acquire(ctx, lock.QueueKey(userID))
	if err != nil {
		if errors.Is(err, apperr.Conflict) {
			s.metrics.Conflict("queue")
		}
		return 0, err
	}

	seq, err := s.appendQueue(ctx, userID, uri)
	release()
	if err != nil {
		return 0, err
	}
	s.metrics.SequenceSize("queue", seq.Len())
	s.events.Publish(ctx, events.QueueChanged, userID, map[string]any{"length": seq.Len()})
	return seq.Len(), nil
}

func (s *Service) appendQueue(ctx context.Context, userID string, uri sequence.TrackRef) (sequence.Sequence, error) {
	cur, err := s.store.QueueTracks(ctx, userID)
	if errors.Is(err, apperr.NotFound) {
		cur, err = sequence.Sequence{}, nil
	}
	if err != nil {
		return nil, err
	}
	next, err := sequence.Append(cur, []sequence.TrackRef{uri}, sequence.AtEnd)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveQueue(ctx, userID, next); err != nil {
		return nil, err
	}
	return next, nil
}
