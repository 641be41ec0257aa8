package reconciler

import (
	"context"
	"time"

	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
)

// Reconciler converges the target platform towards a list of drafts of one
// kind. It never deletes resources and never touches resources absent from
// the input.
type Reconciler interface {
	Sync(ctx context.Context, drafts []*resource.Draft) (*Statistics, error)
	// Replay retries every pending deferred draft whose missing references
	// now exist.
	Replay(ctx context.Context) (*Statistics, error)
	// Plan computes what Sync would do without writing anything.
	Plan(ctx context.Context, drafts []*resource.Draft) ([]Plan, error)
}

// ErrorSink receives every non-fatal error with the context needed to log or
// compensate: the existing resource, the draft and the computed actions, each
// possibly nil.
type ErrorSink func(message string, cause error, old *resource.Resource, draft *resource.Draft, actions []diff.Action)

// WarningSink receives warnings that do not fail the draft.
type WarningSink func(message string, draft *resource.Draft, old *resource.Resource)

// BeforeCreateHook may rewrite a draft right before it is created. A nil
// draft skips the create.
type BeforeCreateHook func(ctx context.Context, draft *resource.Draft) (*resource.Draft, error)

// BeforeUpdateHook may rewrite the actions right before an update. An empty
// result skips the update.
type BeforeUpdateHook func(ctx context.Context, actions []diff.Action, draft *resource.Draft, old *resource.Resource) ([]diff.Action, error)

type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeUpdated    Outcome = "updated"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
	OutcomeUnresolved Outcome = "unresolved"
)

// Observer is notified of draft outcomes and remote calls, for metrics.
type Observer interface {
	DraftFinished(kind resource.Kind, outcome Outcome)
	RemoteCall(kind resource.Kind, operation string, elapsed time.Duration, err error)
}

const (
	DefaultBatchSize   = 50
	DefaultParallelism = 4
)

// Options is fixed for the lifetime of a reconciler. Sizes of zero or less
// fall back to their defaults.
type Options struct {
	BatchSize   int
	Parallelism int
	PageSize    int

	ErrorSink    ErrorSink
	WarningSink  WarningSink
	BeforeCreate BeforeCreateHook
	BeforeUpdate BeforeUpdateHook
	Observer     Observer
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	if o.PageSize <= 0 {
		o.PageSize = platform.DefaultPageSize
	}
	return o
}

type Operation string

const (
	OperationCreate     Operation = "create"
	OperationUpdate     Operation = "update"
	OperationUnchanged  Operation = "unchanged"
	OperationUnresolved Operation = "unresolved"
	OperationInvalid    Operation = "invalid"
)

// Plan is the dry-run result for one draft.
type Plan struct {
	Key       string
	Operation Operation
	Actions   []diff.Action
	Missing   []resource.ReferenceKey
	Issues    []diff.Issue
	Error     string
}
