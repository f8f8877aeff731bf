// Package session is the per-user playback state machine: which context is
// playing, where in it, and how Next/Previous move under shuffle and repeat.
//
// Transitions are pure. They receive the length of a freshly resolved
// context and return a new Session value; on failure the receiver is
// returned unchanged together with the error.
package session

import (
	"time"

	"musicroom/internal/apperr"
)

// ContextType names the kind of entity supplying the tracks.
type ContextType string

const (
	ContextAlbum    ContextType = "album"
	ContextPlaylist ContextType = "playlist"
	ContextQueue    ContextType = "queue"
)

// ContextRef points at the album, playlist or ad-hoc queue being played.
type ContextRef struct {
	Type ContextType `json:"type"`
	ID   string      `json:"id"`
}

func (r ContextRef) IsZero() bool { return r.Type == "" && r.ID == "" }

// Validate checks that the ref names a known context type and an id.
func (r ContextRef) Validate() error {
	switch r.Type {
	case ContextAlbum, ContextPlaylist, ContextQueue:
	default:
		return apperr.New(apperr.CodeInvalid, "unknown context type %q", r.Type)
	}
	if r.ID == "" {
		return apperr.New(apperr.CodeInvalid, "context id is required")
	}
	return nil
}

// RepeatMode controls what Next and Previous do at the ends of the context.
type RepeatMode string

const (
	RepeatOff     RepeatMode = "off"
	RepeatContext RepeatMode = "context"
	RepeatTrack   RepeatMode = "track"
)

// ParseRepeatMode accepts the three mode names.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch m := RepeatMode(s); m {
	case RepeatOff, RepeatContext, RepeatTrack:
		return m, nil
	}
	return "", apperr.New(apperr.CodeInvalid, "repeat mode must be one of off, context, track")
}

// Session is one user's playback state.
//
// Position indexes the effective order: ShuffleOrder when Shuffle is on,
// the natural order otherwise.
type Session struct {
	OwnerID      string     `json:"ownerId"`
	Context      ContextRef `json:"context"`
	Position     int        `json:"position"`
	Paused       bool       `json:"paused"`
	Shuffle      bool       `json:"shuffle"`
	Repeat       RepeatMode `json:"repeat"`
	ShuffleOrder []int      `json:"shuffleOrder,omitempty"`
	ProgressMs   int64      `json:"progressMs"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// New returns the state of a user who has never played anything.
func New(ownerID string) Session {
	return Session{OwnerID: ownerID, Paused: true, Repeat: RepeatOff}
}

// Started reports whether the session has ever been given a context.
func (s Session) Started() bool { return !s.Context.IsZero() }

// Play switches to a new context and starts at startIndex, a natural-order
// index clamped into the context. With shuffle on, a new permutation is drawn
// with the start track first.
func (s Session) Play(ref ContextRef, n, startIndex int, shuffle Shuffler) (Session, error) {
	if n == 0 {
		return s, emptyContext()
	}
	startIndex = clamp(startIndex, n)

	s.Context = ref
	s.Paused = false
	s.ProgressMs = 0
	if s.Shuffle {
		s.ShuffleOrder = anchoredPerm(shuffle, n, startIndex)
		s.Position = 0
	} else {
		s.ShuffleOrder = nil
		s.Position = startIndex
	}
	return s, nil
}

func (s Session) Pause() Session {
	s.Paused = true
	return s
}

func (s Session) Resume(n int) (Session, error) {
	if n == 0 {
		return s, emptyContext()
	}
	s.Paused = false
	return s, nil
}

// Seek records the playback offset inside the current track. It does not
// move Position.
func (s Session) Seek(n int, offsetMs int64) (Session, error) {
	if n == 0 {
		return s, emptyContext()
	}
	if offsetMs < 0 {
		return s, apperr.New(apperr.CodeOutOfRange, "position_ms must not be negative")
	}
	s.ProgressMs = offsetMs
	return s, nil
}

// Next advances one step in the effective order. At the last entry it wraps
// with RepeatContext, replays with RepeatTrack and otherwise stops, paused on
// the last entry.
func (s Session) Next(n int) (Session, error) {
	if n == 0 {
		return s, emptyContext()
	}
	s.ProgressMs = 0
	if s.Position < n-1 {
		s.Position++
		return s, nil
	}
	switch s.Repeat {
	case RepeatContext:
		s.Position = 0
	case RepeatTrack:
	default:
		s.Position = n - 1
		s.Paused = true
	}
	return s, nil
}

// Previous steps back one entry. At the first entry it wraps to the last
// only with RepeatContext.
func (s Session) Previous(n int) (Session, error) {
	if n == 0 {
		return s, emptyContext()
	}
	s.ProgressMs = 0
	if s.Position > 0 {
		s.Position--
		return s, nil
	}
	if s.Repeat == RepeatContext {
		s.Position = n - 1
	}
	return s, nil
}

// SetShuffle switches shuffle on or off without changing the track being
// played. Switching on draws a fresh permutation rotated so the current
// track comes first; switching off maps Position back to the natural order.
func (s Session) SetShuffle(n int, on bool, shuffle Shuffler) (Session, error) {
	if n == 0 {
		return s, emptyContext()
	}
	if on == s.Shuffle {
		return s, nil
	}
	current := s.CurrentIndex()
	if current < 0 {
		current = 0
	}
	if on {
		s.ShuffleOrder = anchoredPerm(shuffle, n, current)
		s.Position = 0
	} else {
		s.ShuffleOrder = nil
		s.Position = current
	}
	s.Shuffle = on
	return s, nil
}

func (s Session) SetRepeat(mode RepeatMode) (Session, error) {
	if _, err := ParseRepeatMode(string(mode)); err != nil {
		return s, err
	}
	s.Repeat = mode
	return s, nil
}

// Revalidate brings the session in line with a context that now holds n
// tracks. An emptied context leaves the session paused at 0. A context whose
// length no longer matches the shuffle permutation gets a new permutation
// anchored on the track that was current, clamped into range.
func (s Session) Revalidate(n int, shuffle Shuffler) Session {
	if n == 0 {
		s.Position = 0
		s.Paused = true
		s.ShuffleOrder = nil
		s.ProgressMs = 0
		return s
	}
	if s.Shuffle && len(s.ShuffleOrder) != n {
		current := 0
		if s.Position >= 0 && s.Position < len(s.ShuffleOrder) {
			current = s.ShuffleOrder[s.Position]
		}
		s.ShuffleOrder = anchoredPerm(shuffle, n, clamp(current, n))
		s.Position = 0
		return s
	}
	if !s.Shuffle {
		s.ShuffleOrder = nil
	}
	s.Position = clamp(s.Position, n)
	return s
}

// CurrentIndex returns the natural-order index of the current track, or -1
// when Position does not point into the shuffle order.
func (s Session) CurrentIndex() int {
	if !s.Shuffle {
		return s.Position
	}
	if s.Position < 0 || s.Position >= len(s.ShuffleOrder) {
		return -1
	}
	return s.ShuffleOrder[s.Position]
}

// EffectiveOrder lists natural-order indices in the order they will play.
func (s Session) EffectiveOrder(n int) []int {
	out := make([]int, n)
	if s.Shuffle && len(s.ShuffleOrder) == n {
		copy(out, s.ShuffleOrder)
		return out
	}
	for i := range out {
		out[i] = i
	}
	return out
}

// Upcoming returns up to limit natural-order indices that follow the current
// one. With RepeatContext the list wraps around to the entries before it.
func (s Session) Upcoming(n, limit int) []int {
	if n == 0 || limit <= 0 {
		return nil
	}
	order := s.EffectiveOrder(n)
	next := order[min(s.Position+1, n):]
	if s.Repeat == RepeatContext {
		next = append(next, order[:min(s.Position, n)]...)
	}
	if len(next) > limit {
		next = next[:limit]
	}
	return next
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func emptyContext() error {
	return apperr.New(apperr.CodeEmptyContext, "the current context has no tracks")
}
