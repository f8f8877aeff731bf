package player

import (
	"time"

	"musicroom/internal/device"
	"musicroom/internal/sequence"
	"musicroom/internal/session"
)

// State is the client-facing projection of a session.
type State struct {
	Context    *session.ContextRef `json:"context"`
	Track      *sequence.TrackRef  `json:"item"`
	Index      int                 `json:"index"`
	Position   int                 `json:"position"`
	TrackCount int                 `json:"trackCount"`
	IsPlaying  bool                `json:"isPlaying"`
	Shuffle    bool                `json:"shuffleState"`
	Repeat     session.RepeatMode  `json:"repeatState"`
	ProgressMs int64               `json:"progressMs"`
	Device     *device.Device      `json:"device"`
	Devices    []device.Device     `json:"-"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

func project(t *txn) State {
	st := State{
		Index:      -1,
		Position:   t.sess.Position,
		TrackCount: t.n(),
		IsPlaying:  !t.sess.Paused,
		Shuffle:    t.sess.Shuffle,
		Repeat:     t.sess.Repeat,
		ProgressMs: t.sess.ProgressMs,
		Devices:    t.devices,
		UpdatedAt:  t.sess.UpdatedAt,
	}
	if t.sess.Started() {
		ref := t.sess.Context
		st.Context = &ref
	}
	if idx := t.sess.CurrentIndex(); idx >= 0 {
		if track, ok := t.seq.At(idx); ok {
			st.Track = &track
			st.Index = idx
		}
	}
	if d, ok := device.Active(t.devices); ok {
		st.Device = &d
	}
	return st
}
