package source

import (
	"context"

	"github.com/crmarques/catalogsync/resource"
)

// Source yields the drafts of one kind. Drafts come back with key references;
// resolving them against the target is the reconciler's job.
type Source interface {
	Drafts(ctx context.Context, kind resource.Kind) ([]*resource.Draft, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, kind resource.Kind) ([]*resource.Draft, error)

func (f Func) Drafts(ctx context.Context, kind resource.Kind) ([]*resource.Draft, error) {
	return f(ctx, kind)
}

// Static serves drafts held in memory, cloned on every call.
type Static map[resource.Kind][]*resource.Draft

func (s Static) Drafts(_ context.Context, kind resource.Kind) ([]*resource.Draft, error) {
	drafts := s[kind]
	cloned := make([]*resource.Draft, 0, len(drafts))
	for _, draft := range drafts {
		cloned = append(cloned, draft.Clone())
	}
	return cloned, nil
}
