// Package catalog resolves a playback context (album, playlist or ad-hoc
// queue) to the ordered tracks it currently holds.
package catalog

import (
	"context"

	"musicroom/internal/apperr"
	"musicroom/internal/sequence"
	"musicroom/internal/session"
)

// Source produces the current track list of one kind of context.
// Implementations return an apperr NotFound error when id does not exist.
type Source interface {
	Tracks(ctx context.Context, id string) (sequence.Sequence, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id string) (sequence.Sequence, error)

func (f SourceFunc) Tracks(ctx context.Context, id string) (sequence.Sequence, error) {
	return f(ctx, id)
}

// Resolver dispatches a ContextRef to the Source registered for its type.
// Sources are registered once at startup.
type Resolver struct {
	sources map[session.ContextType]Source
}

func NewResolver(sources map[session.ContextType]Source) *Resolver {
	r := &Resolver{sources: make(map[session.ContextType]Source, len(sources))}
	for t, s := range sources {
		r.sources[t] = s
	}
	return r
}

// Resolve returns a snapshot of the context's tracks.
func (r *Resolver) Resolve(ctx context.Context, ref session.ContextRef) (sequence.Sequence, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	src, ok := r.sources[ref.Type]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "no source for %s contexts", ref.Type)
	}
	return src.Tracks(ctx, ref.ID)
}
