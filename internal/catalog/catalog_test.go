package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicroom/internal/apperr"
	"musicroom/internal/sequence"
	"musicroom/internal/session"
)

func TestResolver_Dispatch(t *testing.T) {
	albums := SourceFunc(func(ctx context.Context, id string) (sequence.Sequence, error) {
		return sequence.Sequence{"a1", "a2"}, nil
	})
	playlists := SourceFunc(func(ctx context.Context, id string) (sequence.Sequence, error) {
		if id != "pl-1" {
			return nil, apperr.New(apperr.CodeNotFound, "playlist not found")
		}
		return sequence.Sequence{"p1"}, nil
	})
	r := NewResolver(map[session.ContextType]Source{
		session.ContextAlbum:    albums,
		session.ContextPlaylist: playlists,
	})
	ctx := context.Background()

	seq, err := r.Resolve(ctx, session.ContextRef{Type: session.ContextAlbum, ID: "x"})
	require.NoError(t, err)
	assert.Equal(t, sequence.Sequence{"a1", "a2"}, seq)

	seq, err = r.Resolve(ctx, session.ContextRef{Type: session.ContextPlaylist, ID: "pl-1"})
	require.NoError(t, err)
	assert.Equal(t, sequence.Sequence{"p1"}, seq)

	_, err = r.Resolve(ctx, session.ContextRef{Type: session.ContextPlaylist, ID: "missing"})
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = r.Resolve(ctx, session.ContextRef{Type: session.ContextQueue, ID: "q"})
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = r.Resolve(ctx, session.ContextRef{Type: "artist", ID: "x"})
	assert.ErrorIs(t, err, apperr.Invalid)
}

func TestCachedSource(t *testing.T) {
	var loads atomic.Int32
	src := SourceFunc(func(ctx context.Context, id string) (sequence.Sequence, error) {
		loads.Add(1)
		if id == "missing" {
			return nil, apperr.New(apperr.CodeNotFound, "album not found")
		}
		time.Sleep(10 * time.Millisecond)
		return sequence.Sequence{sequence.TrackRef(id + "-1"), sequence.TrackRef(id + "-2")}, nil
	})
	cached, err := NewCachedSource(src, 8)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := cached.Tracks(ctx, "alb")
			assert.NoError(t, err)
			assert.Len(t, seq, 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())

	seq, err := cached.Tracks(ctx, "alb")
	require.NoError(t, err)
	seq[0] = "mutated"
	again, err := cached.Tracks(ctx, "alb")
	require.NoError(t, err)
	assert.Equal(t, sequence.TrackRef("alb-1"), again[0], "callers get copies")

	_, err = cached.Tracks(ctx, "missing")
	assert.ErrorIs(t, err, apperr.NotFound)
	_, err = cached.Tracks(ctx, "missing")
	assert.ErrorIs(t, err, apperr.NotFound)
	assert.Equal(t, int32(3), loads.Load(), "failures are not cached")

	cached.Purge()
	_, err = cached.Tracks(ctx, "alb")
	require.NoError(t, err)
	assert.Equal(t, int32(4), loads.Load())
}

func TestNewCachedSource_BadSize(t *testing.T) {
	_, err := NewCachedSource(SourceFunc(nil), 0)
	assert.Error(t, err)
}
