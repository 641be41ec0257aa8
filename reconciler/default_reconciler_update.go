package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
)

// updateAttempt is the state of the optimistic-concurrency protocol. An
// update is tried once against the resource read with its batch and at most
// once more against a freshly fetched copy.
type updateAttempt int

const (
	firstAttempt updateAttempt = iota
	retryAfterRefetch
)

func (r *DefaultReconciler) update(
	ctx context.Context,
	current *run,
	old *resource.Resource,
	draft *resource.Draft,
	hadPending bool,
) {
	key := draft.Key()
	target := old

	for attempt := firstAttempt; ; attempt = retryAfterRefetch {
		actions, ok := r.prepareActions(ctx, current, target, draft, hadPending)
		if !ok {
			return
		}
		if len(actions) == 0 {
			r.observe(OutcomeUnchanged)
			r.clearPending(ctx, current, draft, hadPending)
			return
		}

		started := time.Now()
		updated, err := r.Client.Update(ctx, r.Descriptor.Kind, target.ID, target.Version, actions)
		r.observeCall("update", started, err)
		if err == nil {
			r.Cache.Put(r.Descriptor.Kind, updated.Key, updated.ID)
			current.stats.updated.Add(1)
			current.touch(resource.ReferenceKey{Kind: r.Descriptor.Kind, Key: key})
			r.observe(OutcomeUpdated)
			logging.FromContext(ctx).V(logging.DebugLevel).Info(
				"resource updated",
				"key", key,
				"actions", diff.Names(actions),
				"attempt", int(attempt),
			)
			r.clearPending(ctx, current, draft, hadPending)
			return
		}

		if !faults.IsCategory(err, faults.ConflictError) {
			r.fail(
				current,
				fmt.Sprintf("Failed to update %s with key: '%s'. Reason: %s", r.Descriptor.Kind, key, err.Error()),
				faults.NewTypedError(faults.RemoteCallError, "update failed", err),
				target,
				draft,
				actions,
			)
			return
		}

		if attempt == retryAfterRefetch {
			r.fail(
				current,
				fmt.Sprintf("Failed to update %s with key: '%s'. Reason: concurrent modification persisted after retrying.", r.Descriptor.Kind, key),
				faults.NewTypedError(faults.ConflictRetryError, "conflict persisted after retry", err),
				target,
				draft,
				actions,
			)
			return
		}

		refetched, ok := r.refetch(ctx, current, target, draft, actions)
		if !ok {
			return
		}
		target = refetched
	}
}

// refetch reads the current version of a resource after a conflict.
func (r *DefaultReconciler) refetch(
	ctx context.Context,
	current *run,
	stale *resource.Resource,
	draft *resource.Draft,
	actions []diff.Action,
) (*resource.Resource, bool) {
	key := draft.Key()
	logging.FromContext(ctx).V(logging.DebugLevel).Info("update conflict, refetching", "key", key, "version", stale.Version)

	started := time.Now()
	fetched, err := platform.FetchByKeys(ctx, r.Client, r.Descriptor.Kind, []string{key}, 1)
	r.observeCall("query", started, err)
	if err != nil {
		r.fail(
			current,
			fmt.Sprintf("Failed to update %s with key: '%s'. Reason: failed to fetch while retrying after concurrency modification.", r.Descriptor.Kind, key),
			faults.NewTypedError(faults.ConflictRetryError, "refetch failed", err),
			stale,
			draft,
			actions,
		)
		return nil, false
	}

	refetched, found := fetched[key]
	if !found {
		r.fail(
			current,
			fmt.Sprintf("Failed to update %s with key: '%s'. Reason: not found while retrying after concurrency modification.", r.Descriptor.Kind, key),
			faults.NewTypedError(faults.ConflictRetryError, "resource disappeared during retry", faults.NewTypedError(faults.NotFoundError, key, nil)),
			stale,
			draft,
			actions,
		)
		return nil, false
	}
	return refetched, true
}

// prepareActions diffs old against draft, reports field issues and runs the
// before-update hook. ok is false once the draft has been failed.
func (r *DefaultReconciler) prepareActions(
	ctx context.Context,
	current *run,
	old *resource.Resource,
	draft *resource.Draft,
	hadPending bool,
) ([]diff.Action, bool) {
	meta := r.metadataFor(ctx, current, draft, old)
	actions, issues := r.Descriptor.Engine.Diff(old.Payload, draft.Payload, meta)
	for _, issue := range issues {
		message := fmt.Sprintf("%s with key: '%s': %s", r.Descriptor.Kind, draft.Key(), issue.Message)
		if issue.Severity == diff.SeverityWarning {
			r.warn(current, message, draft, old)
			continue
		}
		current.stats.addError(message)
		r.report(message, faults.NewTypedError(faults.ValidationError, issue.Message, nil), old, draft, actions)
	}
	if len(actions) == 0 || r.Options.BeforeUpdate == nil {
		return actions, true
	}

	hooked, err := r.Options.BeforeUpdate(ctx, actions, draft, old)
	if err != nil {
		r.fail(
			current,
			fmt.Sprintf("Failed to prepare update actions of %s with key: '%s'.", r.Descriptor.Kind, draft.Key()),
			err,
			old,
			draft,
			actions,
		)
		return nil, false
	}
	if len(hooked) == 0 {
		r.skip(ctx, current, draft, hadPending, "before-update hook returned no actions")
		return nil, false
	}
	return hooked, true
}
