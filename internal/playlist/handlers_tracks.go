package playlist

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"musicroom/internal/apperr"
	"musicroom/internal/events"
	"musicroom/internal/httpx"
	"musicroom/internal/lock"
	"musicroom/internal/sequence"
)

const (
	defaultTrackPage = 100
	maxTrackPage     = 100
)

func (s *Server) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlistID := chi.URLParam(r, "id")

	limit, offset, err := page(r, defaultTrackPage, maxTrackPage)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.requireView(ctx, playlistID, httpx.UserID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	seq, snapshot, err := s.store.PlaylistSnapshot(ctx, playlistID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := sequence.Sequence{}
	if offset < seq.Len() {
		items = seq[offset:min(offset+limit, seq.Len())]
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"snapshotId": snapshot,
		"items":      items,
		"total":      seq.Len(),
		"offset":     offset,
		"limit":      limit,
	})
}

// handleAddTracks inserts uris at position, or appends when position is
// omitted.
func (s *Server) handleAddTracks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URIs     []sequence.TrackRef `json:"uris"`
		Position *int                `json:"position"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(body.URIs) == 0 {
		s.fail(w, r, apperr.New(apperr.CodeInvalid, "uris must not be empty"))
		return
	}
	position := sequence.AtEnd
	if body.Position != nil {
		position = *body.Position
	}

	s.edit(w, r, "append", http.StatusCreated, func(seq sequence.Sequence) (sequence.Sequence, error) {
		return sequence.Append(seq, body.URIs, position)
	})
}

// handleUpdateTracks replaces the whole list when uris is present and
// otherwise moves a block of tracks.
func (s *Server) handleUpdateTracks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URIs         *[]sequence.TrackRef `json:"uris"`
		RangeStart   *int                 `json:"rangeStart"`
		RangeLength  int                  `json:"rangeLength"`
		InsertBefore *int                 `json:"insertBefore"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	if body.URIs != nil {
		uris := *body.URIs
		s.edit(w, r, "replace", http.StatusOK, func(seq sequence.Sequence) (sequence.Sequence, error) {
			return sequence.Replace(seq, uris)
		})
		return
	}

	if body.RangeStart == nil || body.InsertBefore == nil {
		s.fail(w, r, apperr.New(apperr.CodeInvalid, "either uris or rangeStart and insertBefore are required"))
		return
	}
	start, before, length := *body.RangeStart, *body.InsertBefore, body.RangeLength
	s.edit(w, r, "reorder", http.StatusOK, func(seq sequence.Sequence) (sequence.Sequence, error) {
		return sequence.ReorderRange(seq, start, length, before)
	})
}

// handleRemoveTracks removes every occurrence of each listed uri.
func (s *Server) handleRemoveTracks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tracks []struct {
			URI sequence.TrackRef `json:"uri"`
		} `json:"tracks"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(body.Tracks) == 0 {
		s.fail(w, r, apperr.New(apperr.CodeInvalid, "tracks must not be empty"))
		return
	}
	targets := make([]sequence.TrackRef, 0, len(body.Tracks))
	for _, t := range body.Tracks {
		targets = append(targets, t.URI)
	}

	s.edit(w, r, "delete", http.StatusOK, func(seq sequence.Sequence) (sequence.Sequence, error) {
		return sequence.DeleteByReference(seq, targets), nil
	})
}

// edit checks edit rights, then applies fn to the stored sequence under the
// playlist lock and answers with the new snapshot id.
func (s *Server) edit(w http.ResponseWriter, r *http.Request, op string, status int, fn func(sequence.Sequence) (sequence.Sequence, error)) {
	ctx := r.Context()
	playlistID := chi.URLParam(r, "id")

	start := time.Now()
	snapshot, n, err := s.applyEdit(ctx, playlistID, httpx.UserID(r), fn)
	s.metrics.Observe("playlist_"+op, start, err)
	if err != nil {
		if errors.Is(err, apperr.Conflict) {
			s.metrics.Conflict("playlist")
		}
		s.fail(w, r, err)
		return
	}
	s.metrics.SequenceSize("playlist", n)

	s.publish(ctx, events.PlaylistTracksChanged, "", map[string]any{
		"playlistId": playlistID,
		"snapshotId": snapshot,
		"op":         op,
		"length":     n,
	})
	httpx.WriteJSON(w, status, map[string]int{"snapshotId": snapshot})
}

func (s *Server) applyEdit(ctx context.Context, playlistID, userID string, fn func(sequence.Sequence) (sequence.Sequence, error)) (int, int, error) {
	if _, err := s.requireEdit(ctx, playlistID, userID); err != nil {
		return 0, 0, err
	}

	release, err := s.locker.Acquire(ctx, lock.PlaylistKey(playlistID))
	if err != nil {
		return 0, 0, err
	}
	defer release()

	seq, _, err := s.store.PlaylistSnapshot(ctx, playlistID)
	if err != nil {
		return 0, 0, err
	}
	next, err := fn(seq)
	if err != nil {
		return 0, 0, err
	}
	snapshot, err := s.store.SavePlaylistTracks(ctx, playlistID, next)
	if err != nil {
		return 0, 0, err
	}
	return snapshot, next.Len(), nil
}
