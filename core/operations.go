package core

import (
	"context"
	"fmt"

	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/reconciler"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/unresolved"
)

// Reconciler builds the reconciler of one kind with the runtime's sizes,
// hooks and metrics.
func (r *Runtime) Reconciler(kind resource.Kind, sinks Sinks) (*reconciler.DefaultReconciler, error) {
	descriptor, err := r.Registry.Get(kind)
	if err != nil {
		return nil, err
	}
	return reconciler.New(descriptor, r.Target, r.Store, r.Cache, reconciler.Options{
		BatchSize:    r.Config.Sync.BatchSize,
		Parallelism:  r.Config.Sync.Parallelism,
		PageSize:     r.Config.Sync.PageSize,
		ErrorSink:    sinks.Errors,
		WarningSink:  sinks.Warnings,
		BeforeCreate: r.Hooks.BeforeCreate(kind),
		BeforeUpdate: r.Hooks.BeforeUpdate(kind),
		Observer:     r.Metrics,
	})
}

// Kinds orders the named kinds so referenced kinds come first. No names
// selects every kind.
func (r *Runtime) Kinds(names []string) ([]resource.Kind, error) {
	kinds := make([]resource.Kind, 0, len(names))
	for _, name := range names {
		kinds = append(kinds, resource.Kind(name))
	}
	return r.Registry.Order(kinds)
}

// Sync reads the drafts of kind, syncs them, then replays the kind's
// deferred drafts that became resolvable.
func (r *Runtime) Sync(ctx context.Context, kind resource.Kind, sinks Sinks) (*reconciler.Statistics, error) {
	rec, err := r.Reconciler(kind, sinks)
	if err != nil {
		return nil, err
	}
	drafts, err := r.Drafts.Drafts(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("read %s drafts: %w", kind, err)
	}
	logging.FromContext(ctx).Info("syncing drafts", "kind", kind, "count", len(drafts))

	stats, err := rec.Sync(ctx, drafts)
	if err != nil {
		return stats, err
	}
	replayed, err := rec.Replay(ctx)
	stats.Merge(replayed)
	return stats, err
}

// Plan computes the actions a sync of kind would send.
func (r *Runtime) Plan(ctx context.Context, kind resource.Kind, sinks Sinks) ([]reconciler.Plan, error) {
	rec, err := r.Reconciler(kind, sinks)
	if err != nil {
		return nil, err
	}
	drafts, err := r.Drafts.Drafts(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("read %s drafts: %w", kind, err)
	}
	return rec.Plan(ctx, drafts)
}

func (r *Runtime) Replay(ctx context.Context, kind resource.Kind, sinks Sinks) (*reconciler.Statistics, error) {
	rec, err := r.Reconciler(kind, sinks)
	if err != nil {
		return nil, err
	}
	return rec.Replay(ctx)
}

// Pending lists the deferred drafts of kind.
func (r *Runtime) Pending(ctx context.Context, kind resource.Kind) ([]unresolved.Record, error) {
	if _, err := r.Registry.Get(kind); err != nil {
		return nil, err
	}
	return r.Store.List(ctx, kind)
}
