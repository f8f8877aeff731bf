// Package lock provides per-key exclusive locks with a bounded retry budget.
// A caller that cannot get the lock within the budget receives an apperr
// Conflict and is expected to retry the request later.
package lock

import (
	"context"
	"time"

	"musicroom/internal/apperr"
)

// Locker grants exclusive ownership of a key until release is called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type Options struct {
	// TTL bounds how long a crashed holder can keep a distributed lock.
	TTL        time.Duration
	Retries    int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		TTL:        5 * time.Second,
		Retries:    40,
		RetryDelay: 25 * time.Millisecond,
	}
}

// Key helpers keep the per-user and per-playlist domains apart.
func PlayerKey(userID string) string { return "player:" + userID }
func PlaylistKey(playlistID string) string { return "playlist:" + playlistID }
func QueueKey(userID string) string { return "queue:" + userID }

func busy(key string) error {
	return apperr.New(apperr.CodeConflict, "%s is busy, retry later", key)
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
