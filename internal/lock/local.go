package lock

import (
	"context"
	"sync"
)

// Local is an in-process Locker for single-instance deployments and tests.
// Entries are reference counted and dropped once nobody holds or waits.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	opts    Options
}

type localEntry struct {
	held chan struct{}
	refs int
}

func NewLocal(opts Options) *Local {
	return &Local{entries: make(map[string]*localEntry), opts: opts}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	e := l.ref(key)

	for attempt := 0; ; attempt++ {
		select {
		case e.held <- struct{}{}:
			var once sync.Once
			return func() {
				once.Do(func() {
					<-e.held
					l.unref(key)
				})
			}, nil
		default:
		}
		if attempt >= l.opts.Retries {
			l.unref(key)
			return nil, busy(key)
		}
		if err := wait(ctx, l.opts.RetryDelay); err != nil {
			l.unref(key)
			return nil, err
		}
	}
}

func (l *Local) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{held: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size is the number of live entries.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
