// Package store persists playback sessions, device lists, track sequences and
// playlist metadata in postgres. Sessions, devices and sequences are stored as
// JSONB documents, one row per owner.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"musicroom/internal/apperr"
	"musicroom/internal/device"
	"musicroom/internal/playlist"
	"musicroom/internal/sequence"
	"musicroom/internal/session"
)

// DB is implemented by *pgxpool.Pool and can be mocked for testing.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	db  DB
	now func() time.Time
}

func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// ---- sessions ----

// LoadSession returns nil when the user has no stored session.
func (p *Postgres) LoadSession(ctx context.Context, userID string) (*session.Session, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `SELECT state FROM playback_sessions WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load session: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("store: decode session: %w", err)
	}
	return &s, nil
}

func (p *Postgres) SaveSession(ctx context.Context, userID string, s session.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: encode session: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO playback_sessions (user_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, userID, raw, p.now())
	if err != nil {
		return fmt.Errorf("store: save session: %w", err)
	}
	return nil
}

// ---- devices ----

// LoadDevices returns an empty list when the user never registered a device.
func (p *Postgres) LoadDevices(ctx context.Context, userID string) ([]device.Device, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `SELECT devices FROM player_devices WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []device.Device{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load devices: %w", err)
	}
	devices := []device.Device{}
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("store: decode devices: %w", err)
	}
	if devices == nil {
		devices = []device.Device{}
	}
	return devices, nil
}

func (p *Postgres) SaveDevices(ctx context.Context, userID string, devices []device.Device) error {
	if devices == nil {
		devices = []device.Device{}
	}
	raw, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("store: encode devices: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO player_devices (user_id, devices, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET devices = EXCLUDED.devices, updated_at = EXCLUDED.updated_at
	`, userID, raw, p.now())
	if err != nil {
		return fmt.Errorf("store: save devices: %w", err)
	}
	return nil
}

// ---- track sequences ----

func (p *Postgres) AlbumTracks(ctx context.Context, id string) (sequence.Sequence, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `SELECT tracks FROM albums WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.CodeNotFound, "album %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load album: %w", err)
	}
	return decodeSequence(raw)
}

func (p *Postgres) PlaylistTracks(ctx context.Context, id string) (sequence.Sequence, error) {
	seq, _, err := p.PlaylistSnapshot(ctx, id)
	return seq, err
}

// PlaylistSnapshot returns the playlist's tracks with their snapshot version.
func (p *Postgres) PlaylistSnapshot(ctx context.Context, id string) (sequence.Sequence, int, error) {
	if !validID(id) {
		return nil, 0, playlistNotFound(id)
	}
	var (
		raw      []byte
		snapshot int
	)
	err := p.db.QueryRow(ctx, `SELECT tracks, snapshot FROM playlists WHERE id = $1`, id).Scan(&raw, &snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, playlistNotFound(id)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("store: load playlist tracks: %w", err)
	}
	seq, err := decodeSequence(raw)
	if err != nil {
		return nil, 0, err
	}
	return seq, snapshot, nil
}

// SavePlaylistTracks replaces the stored sequence and bumps the snapshot.
func (p *Postgres) SavePlaylistTracks(ctx context.Context, id string, seq sequence.Sequence) (int, error) {
	if !validID(id) {
		return 0, playlistNotFound(id)
	}
	raw, err := encodeSequence(seq)
	if err != nil {
		return 0, err
	}
	var snapshot int
	err = p.db.QueryRow(ctx, `
		UPDATE playlists
		SET tracks = $2, snapshot = snapshot + 1, updated_at = $3
		WHERE id = $1
		RETURNING snapshot
	`, id, raw, p.now()).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, playlistNotFound(id)
	}
	if err != nil {
		return 0, fmt.Errorf("store: save playlist tracks: %w", err)
	}
	return snapshot, nil
}

// QueueTracks loads the user's ad-hoc queue.
func (p *Postgres) QueueTracks(ctx context.Context, userID string) (sequence.Sequence, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `SELECT tracks FROM queues WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.CodeNotFound, "queue %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load queue: %w", err)
	}
	return decodeSequence(raw)
}

func (p *Postgres) SaveQueue(ctx context.Context, userID string, seq sequence.Sequence) error {
	raw, err := encodeSequence(seq)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO queues (user_id, tracks, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET tracks = EXCLUDED.tracks, updated_at = EXCLUDED.updated_at
	`, userID, raw, p.now())
	if err != nil {
		return fmt.Errorf("store: save queue: %w", err)
	}
	return nil
}

// ---- playlist metadata ----

const playlistColumns = `id::text, owner_id, name, description, is_public, edit_mode, snapshot,
	jsonb_array_length(tracks), created_at, updated_at`

func scanPlaylist(row pgx.Row) (*playlist.Playlist, error) {
	var pl playlist.Playlist
	err := row.Scan(&pl.ID, &pl.OwnerID, &pl.Name, &pl.Description, &pl.IsPublic, &pl.EditMode,
		&pl.SnapshotID, &pl.TrackCount, &pl.CreatedAt, &pl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pl, nil
}

// CreatePlaylist inserts p and fills in its generated fields.
func (p *Postgres) CreatePlaylist(ctx context.Context, pl *playlist.Playlist) error {
	err := p.db.QueryRow(ctx, `
		INSERT INTO playlists (owner_id, name, description, is_public, edit_mode)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, snapshot, created_at, updated_at
	`, pl.OwnerID, pl.Name, pl.Description, pl.IsPublic, pl.EditMode).
		Scan(&pl.ID, &pl.SnapshotID, &pl.CreatedAt, &pl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create playlist: %w", err)
	}
	return nil
}

func (p *Postgres) GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error) {
	if !validID(id) {
		return nil, playlistNotFound(id)
	}
	pl, err := scanPlaylist(p.db.QueryRow(ctx, `SELECT `+playlistColumns+` FROM playlists WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, playlistNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get playlist: %w", err)
	}
	return pl, nil
}

func (p *Postgres) ListPublicPlaylists(ctx context.Context, limit, offset int) ([]playlist.Playlist, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+playlistColumns+`
		FROM playlists
		WHERE is_public
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list playlists: %w", err)
	}
	defer rows.Close()

	out := []playlist.Playlist{}
	for rows.Next() {
		pl, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan playlist: %w", err)
		}
		out = append(out, *pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list playlists: %w", err)
	}
	return out, nil
}

// UpdatePlaylist applies the non-nil fields of upd.
func (p *Postgres) UpdatePlaylist(ctx context.Context, id string, upd playlist.Update) (*playlist.Playlist, error) {
	if !validID(id) {
		return nil, playlistNotFound(id)
	}
	pl, err := scanPlaylist(p.db.QueryRow(ctx, `
		UPDATE playlists
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    is_public = COALESCE($4, is_public),
		    edit_mode = COALESCE($5, edit_mode),
		    updated_at = $6
		WHERE id = $1
		RETURNING `+playlistColumns,
		id, upd.Name, upd.Description, upd.IsPublic, upd.EditMode, p.now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, playlistNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: update playlist: %w", err)
	}
	return pl, nil
}

func (p *Postgres) AccessInfo(ctx context.Context, id string) (playlist.Access, error) {
	var a playlist.Access
	if !validID(id) {
		return a, playlistNotFound(id)
	}
	err := p.db.QueryRow(ctx, `
		SELECT owner_id, is_public, edit_mode
		FROM playlists
		WHERE id = $1
	`, id).Scan(&a.OwnerID, &a.IsPublic, &a.EditMode)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, playlistNotFound(id)
	}
	if err != nil {
		return a, fmt.Errorf("store: playlist access: %w", err)
	}
	return a, nil
}

func (p *Postgres) IsMember(ctx context.Context, playlistID, userID string) (bool, error) {
	if userID == "" || !validID(playlistID) {
		return false, nil
	}
	var uid string
	err := p.db.QueryRow(ctx, `
		SELECT user_id
		FROM playlist_members
		WHERE playlist_id = $1 AND user_id = $2
	`, playlistID, userID).Scan(&uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: playlist member: %w", err)
	}
	return true, nil
}

func (p *Postgres) ListMembers(ctx context.Context, playlistID string) ([]playlist.Member, error) {
	rows, err := p.db.Query(ctx, `
		SELECT user_id, created_at
		FROM playlist_members
		WHERE playlist_id = $1
		ORDER BY created_at
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}
	defer rows.Close()

	out := []playlist.Member{}
	for rows.Next() {
		var m playlist.Member
		if err := rows.Scan(&m.UserID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}
	return out, nil
}

// AddMember is idempotent.
func (p *Postgres) AddMember(ctx context.Context, playlistID, userID string) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO playlist_members (playlist_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, playlistID, userID)
	if err != nil {
		return fmt.Errorf("store: add member: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveMember(ctx context.Context, playlistID, userID string) error {
	tag, err := p.db.Exec(ctx, `
		DELETE FROM playlist_members
		WHERE playlist_id = $1 AND user_id = $2
	`, playlistID, userID)
	if err != nil {
		return fmt.Errorf("store: remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.CodeNotFound, "user %s is not invited", userID)
	}
	return nil
}

func playlistNotFound(id string) error {
	return apperr.New(apperr.CodeNotFound, "playlist %s not found", id)
}

// validID keeps malformed ids from reaching postgres as a uuid cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func encodeSequence(seq sequence.Sequence) ([]byte, error) {
	if seq == nil {
		seq = sequence.Sequence{}
	}
	raw, err := json.Marshal(seq)
	if err != nil {
		return nil, fmt.Errorf("store: encode tracks: %w", err)
	}
	return raw, nil
}

func decodeSequence(raw []byte) (sequence.Sequence, error) {
	seq := sequence.Sequence{}
	if err := json.Unmarshal(raw, &seq); err != nil {
		return nil, fmt.Errorf("store: decode tracks: %w", err)
	}
	if seq == nil {
		seq = sequence.Sequence{}
	}
	return seq, nil
}
