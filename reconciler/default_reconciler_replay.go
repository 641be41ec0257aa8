package reconciler

import (
	"context"
	"fmt"

	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/unresolved"
)

// Replay retries every pending record of the reconciler's kind whose missing
// keys now resolve, then follows up on records unblocked by those replays.
func (r *DefaultReconciler) Replay(ctx context.Context) (*Statistics, error) {
	ctx, current, span := r.startRun(ctx, "replay")
	defer span.End()

	records, err := r.Store.List(ctx, r.Descriptor.Kind)
	if err != nil {
		span.RecordError(err)
		return current.stats, err
	}
	r.replayRecords(ctx, current, records)
	r.replayTouched(ctx, current)

	logging.FromContext(ctx).Info("replay finished", "pending", len(records), "summary", current.stats.Report())
	return current.stats, nil
}

// replayTouched replays the records waiting on keys created or updated in
// this run until a round unblocks nothing new.
func (r *DefaultReconciler) replayTouched(ctx context.Context, current *run) {
	for {
		touched := current.takeTouched()
		if len(touched) == 0 {
			return
		}
		records, err := r.Store.WaitingOn(ctx, r.Descriptor.Kind, touched)
		if err != nil {
			message := fmt.Sprintf("Failed to fetch unresolved %s waiting on this run.", plural(r.Descriptor.Kind))
			current.stats.addError(message)
			r.report(message, err, nil, nil, nil)
			return
		}
		if len(records) == 0 {
			return
		}
		r.replayRecords(ctx, current, records)
	}
}

// replayRecords syncs the drafts of records whose missing keys all resolve
// now. The others stay pending. An owner is replayed at most once per run.
func (r *DefaultReconciler) replayRecords(ctx context.Context, current *run, records []unresolved.Record) {
	if len(records) == 0 {
		return
	}

	missing := resource.NewKeySet()
	for _, record := range records {
		missing.AddAll(record.Missing)
	}
	if err := r.Cache.Populate(ctx, missing); err != nil {
		message := "Failed to build a cache of keys to ids."
		current.stats.addError(message)
		r.report(message, err, nil, nil, nil)
		return
	}

	known := func(key resource.ReferenceKey) bool {
		_, ok := r.Cache.Get(key)
		return ok
	}
	var ready []*resource.Draft
	for _, record := range records {
		if record.ReadyWith(known) && current.markReplayed(record.OwnerKey) {
			ready = append(ready, record.Draft)
		}
	}
	if len(ready) == 0 {
		return
	}

	logging.FromContext(ctx).V(logging.DebugLevel).Info("replaying deferred drafts", "ready", len(ready), "pending", len(records))
	for index, chunk := range platform.Chunk(ready, r.Options.BatchSize) {
		r.syncChunk(ctx, current, index, chunk)
	}
}
