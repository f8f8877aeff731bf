package playlist

import (
	"time"

	"musicroom/internal/sequence"
)

// Playlist is the metadata view of a playlist. Tracks travel separately as a
// sequence.Sequence versioned by SnapshotID.
type Playlist struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	EditMode    string    `json:"editMode"` // "everyone" | "invited"
	SnapshotID  int       `json:"snapshotId"`
	TrackCount  int       `json:"trackCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Member is a user invited to edit (or see, when private) a playlist.
type Member struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Access struct {
	OwnerID  string
	IsPublic bool
	EditMode string
}

// Update carries the optional fields of a PATCH.
type Update struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"isPublic"`
	EditMode    *string `json:"editMode"`
}

type Tracks struct {
	SnapshotID int               `json:"snapshotId"`
	Items      sequence.Sequence `json:"items"`
}

const (
	editModeEveryone = "everyone"
	editModeInvited  = "invited"
)

func validEditMode(m string) bool {
	return m == editModeEveryone || m == editModeInvited
}
