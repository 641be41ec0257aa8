package reconciler

import (
	"context"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
)

// Plan runs validation, resolution and diffing without any write. Hooks are
// not invoked and nothing is deferred.
func (r *DefaultReconciler) Plan(ctx context.Context, drafts []*resource.Draft) ([]Plan, error) {
	ctx, current, span := r.startRun(ctx, "plan")
	defer span.End()

	plans := make([]Plan, 0, len(drafts))
	for _, chunk := range platform.Chunk(drafts, r.Options.BatchSize) {
		validated := r.validator.Validate(chunk)
		for _, failure := range validated.Failures {
			plans = append(plans, Plan{
				Key:       failure.Draft.Key(),
				Operation: OperationInvalid,
				Error:     failure.Message(),
			})
		}
		if len(validated.Valid) == 0 {
			continue
		}

		if err := r.Cache.Populate(ctx, validated.Keys); err != nil {
			return plans, err
		}
		existing, err := r.fetchExisting(ctx, draftKeys(validated.Valid))
		if err != nil {
			return plans, faults.NewTypedError(faults.RemoteCallError, "failed to fetch existing resources", err)
		}

		for _, draft := range validated.Valid {
			plans = append(plans, r.planDraft(ctx, current, draft, existing[draft.Key()]))
		}
	}
	return plans, nil
}

func (r *DefaultReconciler) planDraft(ctx context.Context, current *run, draft *resource.Draft, old *resource.Resource) Plan {
	plan := Plan{Key: draft.Key()}

	outcome, err := r.resolver.Resolve(draft)
	if err != nil {
		plan.Operation = OperationInvalid
		plan.Error = err.Error()
		return plan
	}
	if !outcome.Resolved() {
		plan.Operation = OperationUnresolved
		plan.Missing = outcome.Missing.Sorted()
		return plan
	}
	if old == nil {
		plan.Operation = OperationCreate
		return plan
	}

	meta := r.metadataFor(ctx, current, outcome.Draft, old)
	plan.Actions, plan.Issues = r.Descriptor.Engine.Diff(old.Payload, outcome.Draft.Payload, meta)
	if len(plan.Actions) == 0 {
		plan.Operation = OperationUnchanged
	} else {
		plan.Operation = OperationUpdate
	}
	return plan
}
