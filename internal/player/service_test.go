package player

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicroom/internal/apperr"
	"musicroom/internal/device"
	"musicroom/internal/events"
	"musicroom/internal/lock"
	"musicroom/internal/sequence"
	"musicroom/internal/session"
)

func trackOf(st State) sequence.TrackRef {
	if st.Track == nil {
		return ""
	}
	return *st.Track
}

func TestPlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1"), Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, sequence.TrackRef("t1"), trackOf(st))
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, 4, st.TrackCount)
	assert.True(t, st.IsPlaying)
	require.NotNil(t, st.Context)
	assert.Equal(t, *albumRef("a1"), *st.Context)

	assert.Equal(t, 1, f.store.sessionSaves)
	require.Equal(t, 1, f.pub.count())
	assert.Equal(t, events.PlayerStateChanged, f.pub.events[0].typ)
	assert.Equal(t, "u1", f.pub.events[0].userID)

	t.Run("OffsetClamped", func(t *testing.T) {
		st, err := f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1"), Offset: 99})
		require.NoError(t, err)
		assert.Equal(t, 3, st.Index)
	})

	t.Run("NegativeOffset", func(t *testing.T) {
		_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1"), Offset: -1})
		assert.ErrorIs(t, err, apperr.OutOfRange)
	})

	t.Run("UnknownContext", func(t *testing.T) {
		_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("missing")})
		assert.ErrorIs(t, err, apperr.NotFound)
	})

	t.Run("InvalidContext", func(t *testing.T) {
		_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: &session.ContextRef{Type: "radio", ID: "x"}})
		assert.ErrorIs(t, err, apperr.Invalid)
	})
}

func TestPlay_EmptyContextLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Play(context.Background(), "u1", PlayRequest{Context: albumRef("empty")})
	assert.ErrorIs(t, err, apperr.EmptyContext)
	assert.Zero(t, f.store.sessionSaves)
	assert.Zero(t, f.pub.count())
}

func TestPlay_WithoutContextResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Play(ctx, "u1", PlayRequest{})
	assert.ErrorIs(t, err, apperr.EmptyContext, "nothing to resume yet")

	_, err = f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1"), Offset: 2})
	require.NoError(t, err)
	_, err = f.svc.Pause(ctx, "u1")
	require.NoError(t, err)

	st, err := f.svc.Play(ctx, "u1", PlayRequest{})
	require.NoError(t, err)
	assert.True(t, st.IsPlaying)
	assert.Equal(t, sequence.TrackRef("t2"), trackOf(st))
}

func TestPlay_ForeignQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToQueue(ctx, "owner", "secret-track")
	require.NoError(t, err)
	saves, published := f.store.sessionSaves, f.pub.count()

	_, err = f.svc.Play(ctx, "intruder", PlayRequest{Context: &session.ContextRef{Type: session.ContextQueue, ID: "owner"}})
	assert.ErrorIs(t, err, apperr.Forbidden)
	assert.Equal(t, saves, f.store.sessionSaves)
	assert.Equal(t, published, f.pub.count())

	st, err := f.svc.State(ctx, "intruder")
	require.NoError(t, err)
	assert.Nil(t, st.Track)

	view, err := f.svc.Queue(ctx, "intruder")
	require.NoError(t, err)
	assert.Nil(t, view.Current)
	assert.Empty(t, view.Upcoming)
}

func TestPlay_PrivatePlaylist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.private["p1"] = "owner"

	_, err := f.svc.Play(ctx, "stranger", PlayRequest{Context: playlistRef("p1")})
	assert.ErrorIs(t, err, apperr.Forbidden)
	assert.Zero(t, f.store.sessionSaves)

	st, err := f.svc.Play(ctx, "owner", PlayRequest{Context: playlistRef("p1")})
	require.NoError(t, err)
	assert.Equal(t, sequence.TrackRef("p0"), trackOf(st))

	_, err = f.svc.Play(ctx, "stranger", PlayRequest{Context: playlistRef("nope")})
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestNavigation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1"), Offset: 2})
	require.NoError(t, err)

	st, err := f.svc.Next(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Index)

	st, err = f.svc.Next(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Index, "repeat off stops on the last track")
	assert.False(t, st.IsPlaying)

	_, err = f.svc.SetRepeat(ctx, "u1", session.RepeatContext)
	require.NoError(t, err)
	_, err = f.svc.Resume(ctx, "u1")
	require.NoError(t, err)

	st, err = f.svc.Next(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Index, "repeat context wraps")

	st, err = f.svc.Previous(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Index)

	_, err = f.svc.SetRepeat(ctx, "u1", session.RepeatMode("sometimes"))
	assert.ErrorIs(t, err, apperr.Invalid)
}

func TestSeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Seek(ctx, "u1", 1000)
	assert.ErrorIs(t, err, apperr.EmptyContext)

	_, err = f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1")})
	require.NoError(t, err)

	st, err := f.svc.Seek(ctx, "u1", 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), st.ProgressMs)

	_, err = f.svc.Seek(ctx, "u1", -1)
	assert.ErrorIs(t, err, apperr.OutOfRange)

	st, err = f.svc.Next(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, st.ProgressMs)
}

func TestNoSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, op := range map[string]func(context.Context, string) (State, error){
		"next":     f.svc.Next,
		"previous": f.svc.Previous,
		"resume":   f.svc.Resume,
	} {
		_, err := op(ctx, "u1")
		assert.ErrorIs(t, err, apperr.EmptyContext, name)
	}

	st, err := f.svc.Pause(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, st.Context)
	assert.Nil(t, st.Track)
	assert.Equal(t, -1, st.Index)
	assert.Zero(t, f.store.sessionSaves, "pausing a fresh session changes nothing")
}

func TestRevalidation(t *testing.T) {
	ctx := context.Background()

	t.Run("ShrunkContextIsClamped", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: playlistRef("p1"), Offset: 4})
		require.NoError(t, err)

		f.store.setPlaylist("p1", sequence.Sequence{"p0", "p1"})

		st, err := f.svc.State(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, st.Index)
		assert.Equal(t, sequence.TrackRef("p1"), trackOf(st))

		st, err = f.svc.Next(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, st.Index)
		assert.False(t, st.IsPlaying)
	})

	t.Run("EmptiedContextIsStoppedAndPersisted", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: playlistRef("p1"), Offset: 2})
		require.NoError(t, err)

		f.store.setPlaylist("p1", sequence.Sequence{})

		_, err = f.svc.Next(ctx, "u1")
		assert.ErrorIs(t, err, apperr.EmptyContext)

		stored := f.store.sessionOf("u1")
		assert.True(t, stored.Paused)
		assert.Zero(t, stored.Position)
		assert.Equal(t, 2, f.pub.count(), "the forced stop is published")
	})

	t.Run("DeletedContextCountsAsEmpty", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: playlistRef("p1")})
		require.NoError(t, err)

		f.store.mu.Lock()
		delete(f.store.playlists, "p1")
		f.store.mu.Unlock()

		_, err = f.svc.Resume(ctx, "u1")
		assert.ErrorIs(t, err, apperr.EmptyContext)
		assert.True(t, f.store.sessionOf("u1").Paused)
	})

	t.Run("ShuffleOrderRegenerated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: playlistRef("p1"), Offset: 1})
		require.NoError(t, err)
		_, err = f.svc.SetShuffle(ctx, "u1", true)
		require.NoError(t, err)

		f.store.setPlaylist("p1", sequence.Sequence{"p0", "p1", "p2", "p3", "p4", "p5", "p6"})

		st, err := f.svc.Pause(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, sequence.TrackRef("p1"), trackOf(st), "anchored on the track that was playing")
		assert.Len(t, f.store.sessionOf("u1").ShuffleOrder, 7)
	})
}

func TestShuffleKeepsCurrentTrack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Play(ctx, "u1", PlayRequest{Context: playlistRef("p1"), Offset: 3})
	require.NoError(t, err)

	st, err := f.svc.SetShuffle(ctx, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, sequence.TrackRef("p3"), trackOf(st))
	assert.Equal(t, 0, st.Position)

	st, err = f.svc.Next(ctx, "u1")
	require.NoError(t, err)
	playing := trackOf(st)
	assert.NotEqual(t, sequence.TrackRef("p3"), playing)

	st, err = f.svc.SetShuffle(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, playing, trackOf(st))
	assert.Equal(t, st.Index, st.Position)
}

func TestLockConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	release, err := f.locker.Acquire(ctx, lock.PlayerKey("u1"))
	require.NoError(t, err)

	_, err = f.svc.Next(ctx, "u1")
	assert.ErrorIs(t, err, apperr.Conflict)

	_, err = f.svc.Play(ctx, "u2", PlayRequest{Context: albumRef("a1")})
	assert.NoError(t, err, "other users are not blocked")

	release()
	_, err = f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1")})
	assert.NoError(t, err)
}

func TestSaveFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failSave = errors.New("db down")

	_, err := f.svc.Play(context.Background(), "u1", PlayRequest{Context: albumRef("a1")})
	require.Error(t, err)
	assert.Empty(t, apperr.CodeOf(err))
	assert.Zero(t, f.pub.count())

	// the lock was released despite the failure
	release, err := f.locker.Acquire(context.Background(), lock.PlayerKey("u1"))
	require.NoError(t, err)
	release()
}

func TestDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, "u1", "d1", false)
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = f.svc.SetVolume(ctx, "u1", "", 50)
	assert.ErrorIs(t, err, apperr.NotFound, "no active device")

	ds, err := f.svc.RegisterDevice(ctx, "u1", device.NewDevice("d1", "Phone", "smartphone"))
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.False(t, ds[0].IsActive)
	_, err = f.svc.RegisterDevice(ctx, "u1", device.NewDevice("d2", "Speaker", "speaker"))
	require.NoError(t, err)

	st, err := f.svc.Transfer(ctx, "u1", "d2", false)
	require.NoError(t, err)
	require.NotNil(t, st.Device)
	assert.Equal(t, "d2", st.Device.ID)

	st, err = f.svc.SetVolume(ctx, "u1", "", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, st.Device.Volume)

	_, err = f.svc.SetVolume(ctx, "u1", "d1", 101)
	assert.ErrorIs(t, err, apperr.OutOfRange)

	st, err = f.svc.Transfer(ctx, "u1", "d1", false)
	require.NoError(t, err)
	assert.Equal(t, "d1", st.Device.ID)

	devices, err := f.svc.Devices(ctx, "u1")
	require.NoError(t, err)
	active := 0
	for _, d := range devices {
		if d.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestTransferWithPlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterDevice(ctx, "u1", device.NewDevice("d1", "Phone", "smartphone"))
	require.NoError(t, err)

	st, err := f.svc.Transfer(ctx, "u1", "d1", true)
	require.NoError(t, err, "nothing to play is not an error on transfer")
	assert.False(t, st.IsPlaying)

	_, err = f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1")})
	require.NoError(t, err)
	_, err = f.svc.Pause(ctx, "u1")
	require.NoError(t, err)

	st, err = f.svc.Transfer(ctx, "u1", "d1", true)
	require.NoError(t, err)
	assert.True(t, st.IsPlaying)
}

func TestPlayOnDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterDevice(ctx, "u1", device.NewDevice("d1", "Phone", "smartphone"))
	require.NoError(t, err)

	_, err = f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("empty"), DeviceID: "d1"})
	assert.ErrorIs(t, err, apperr.EmptyContext)
	ds, err := f.svc.Devices(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ds[0].IsActive, "a failed play does not transfer")

	_, err = f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1"), DeviceID: "nope"})
	assert.ErrorIs(t, err, apperr.NotFound)

	st, err := f.svc.Play(ctx, "u1", PlayRequest{Context: albumRef("a1"), DeviceID: "d1"})
	require.NoError(t, err)
	require.NotNil(t, st.Device)
	assert.Equal(t, "d1", st.Device.ID)
}

func TestQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.AddToQueue(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.svc.AddToQueue(ctx, "u1", "q2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.AddToQueue(ctx, "u1", "")
	assert.ErrorIs(t, err, apperr.Invalid)

	st, err := f.svc.Play(ctx, "u1", PlayRequest{Context: &session.ContextRef{Type: session.ContextQueue, ID: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, sequence.TrackRef("q1"), trackOf(st))

	_, err = f.svc.AddToQueue(ctx, "u1", "q3")
	require.NoError(t, err)

	view, err := f.svc.Queue(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, view.Current)
	assert.Equal(t, sequence.TrackRef("q1"), *view.Current)
	assert.Equal(t, []sequence.TrackRef{"q2", "q3"}, view.Upcoming)

	var queued int
	for _, ev := range f.pub.events {
		if ev.typ == events.QueueChanged {
			queued++
		}
	}
	assert.Equal(t, 3, queued)
}

func TestQueue_Empty(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Queue(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, view.Current)
	assert.Empty(t, view.Upcoming)
}

func TestQueueConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	release, err := f.locker.Acquire(ctx, lock.QueueKey("u1"))
	require.NoError(t, err)
	defer release()

	_, err = f.svc.AddToQueue(ctx, "u1", "q1")
	assert.ErrorIs(t, err, apperr.Conflict)

	_, err = f.svc.Next(ctx, "u1")
	assert.ErrorIs(t, err, apperr.EmptyContext, "the player lock is a separate domain")
}
