package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moby/locker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/keycache"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resolve"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/unresolved"
	"github.com/crmarques/catalogsync/validation"
)

var _ Reconciler = (*DefaultReconciler)(nil)

const tracerName = "github.com/crmarques/catalogsync/reconciler"

// DefaultReconciler runs the validate, resolve, diff and write pipeline for
// one resource kind. The key cache is owned by the caller and may be shared
// with other reconcilers.
type DefaultReconciler struct {
	Descriptor *catalog.Descriptor
	Client     platform.Client
	Store      unresolved.Store
	Cache      *keycache.Cache
	Options    Options

	validator *validation.Validator
	resolver  *resolve.Resolver
	keys      *locker.Locker
	tracer    trace.Tracer
}

func New(
	descriptor *catalog.Descriptor,
	client platform.Client,
	store unresolved.Store,
	cache *keycache.Cache,
	opts Options,
) (*DefaultReconciler, error) {
	if !descriptor.Syncable() {
		return nil, faults.NewTypedError(faults.ValidationError, "reconciler requires a syncable resource descriptor", nil)
	}
	if client == nil {
		return nil, faults.NewTypedError(faults.ValidationError, "reconciler requires a platform client", nil)
	}
	if store == nil {
		return nil, faults.NewTypedError(faults.ValidationError, "reconciler requires an unresolved-reference store", nil)
	}
	opts = opts.withDefaults()
	if cache == nil {
		built, err := keycache.New(client, keycache.Options{PageSize: opts.PageSize})
		if err != nil {
			return nil, err
		}
		cache = built
	}

	return &DefaultReconciler{
		Descriptor: descriptor,
		Client:     client,
		Store:      store,
		Cache:      cache,
		Options:    opts,
		validator:  validation.New(descriptor),
		resolver:   resolve.New(descriptor, cache),
		keys:       locker.New(),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// run is the state of one Sync or Replay call.
type run struct {
	id    string
	stats *Statistics

	mu       sync.Mutex
	touched  resource.KeySet
	replayed map[string]struct{}
	known    map[string][]string
}

func (r *DefaultReconciler) newRun() *run {
	return &run{
		id:       uuid.NewString(),
		stats:    NewStatistics(r.Descriptor.Kind),
		touched:  resource.NewKeySet(),
		replayed: map[string]struct{}{},
		known:    map[string][]string{},
	}
}

func (rn *run) touch(key resource.ReferenceKey) {
	rn.mu.Lock()
	rn.touched.Add(key)
	rn.mu.Unlock()
}

// markReplayed reports whether owner had not been replayed yet in this run.
func (rn *run) markReplayed(owner string) bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if _, done := rn.replayed[owner]; done {
		return false
	}
	rn.replayed[owner] = struct{}{}
	return true
}

// takeTouched returns and clears the keys created or updated so far.
func (rn *run) takeTouched() resource.KeySet {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	touched := rn.touched
	rn.touched = resource.NewKeySet()
	return touched
}

func (r *DefaultReconciler) startRun(ctx context.Context, operation string) (context.Context, *run, trace.Span) {
	current := r.newRun()
	logger := logging.FromContext(ctx).WithValues("kind", r.Descriptor.Kind, "run", current.id)
	ctx = logging.WithLogger(ctx, logger)
	ctx = platform.WithCorrelationID(ctx, current.id)
	ctx, span := r.tracer.Start(ctx, "catalogsync."+operation, trace.WithAttributes(
		attribute.String("catalogsync.kind", string(r.Descriptor.Kind)),
		attribute.String("catalogsync.run", current.id),
	))
	return ctx, current, span
}

// Sync processes drafts in chunks of BatchSize with at most Parallelism
// chunks in flight, then replays deferred drafts unblocked by this run.
// Once ctx is cancelled no new chunk starts; calls already in flight are
// allowed to finish.
func (r *DefaultReconciler) Sync(ctx context.Context, drafts []*resource.Draft) (*Statistics, error) {
	ctx, current, span := r.startRun(ctx, "sync")
	defer span.End()

	if len(drafts) == 0 {
		return current.stats, nil
	}

	logger := logging.FromContext(ctx)
	logger.V(logging.DebugLevel).Info("sync started", "drafts", len(drafts), "batchSize", r.Options.BatchSize)

	if err := r.runChunks(ctx, current, drafts); err != nil {
		span.RecordError(err)
		return current.stats, err
	}
	r.replayTouched(ctx, current)

	span.SetAttributes(
		attribute.Int64("catalogsync.created", current.stats.Counts().Created),
		attribute.Int64("catalogsync.failed", current.stats.Counts().Failed),
	)
	logger.Info("sync finished", "summary", current.stats.Report())
	return current.stats, nil
}

func (r *DefaultReconciler) runChunks(ctx context.Context, current *run, drafts []*resource.Draft) error {
	inFlight := context.WithoutCancel(ctx)
	group := new(errgroup.Group)
	group.SetLimit(r.Options.Parallelism)

	var cancelled error
	for index, chunk := range platform.Chunk(drafts, r.Options.BatchSize) {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		group.Go(func() error {
			r.syncChunk(inFlight, current, index, chunk)
			return nil
		})
	}
	_ = group.Wait()
	if cancelled != nil {
		return faults.NewTypedError(faults.InternalError, "sync cancelled before every batch started", cancelled)
	}
	return nil
}

func (r *DefaultReconciler) syncChunk(ctx context.Context, current *run, index int, chunk []*resource.Draft) {
	ctx, span := r.tracer.Start(ctx, "catalogsync.batch", trace.WithAttributes(
		attribute.Int("catalogsync.batch", index),
		attribute.Int("catalogsync.size", len(chunk)),
	))
	defer span.End()
	logger := logging.FromContext(ctx).WithValues("batch", index)
	ctx = logging.WithLogger(ctx, logger)

	current.stats.processed.Add(int64(len(chunk)))

	validated := r.validator.Validate(chunk)
	for _, failure := range validated.Failures {
		r.fail(current, failure.Message(), failure.Err, nil, failure.Draft, nil)
	}
	if len(validated.Valid) == 0 {
		return
	}

	if err := r.Cache.Populate(ctx, validated.Keys); err != nil {
		span.RecordError(err)
		for _, draft := range validated.Valid {
			r.fail(current, "Failed to build a cache of keys to ids.", err, nil, draft, nil)
		}
		return
	}

	keys := draftKeys(validated.Valid)
	existing, err := r.fetchExisting(ctx, keys)
	if err != nil {
		message := fmt.Sprintf("Failed to fetch existing %s with keys: %v.", plural(r.Descriptor.Kind), keys)
		for _, draft := range validated.Valid {
			r.fail(current, message, err, nil, draft, nil)
		}
		return
	}

	pending, err := r.Store.Fetch(ctx, r.Descriptor.Kind, keys)
	if err != nil {
		for _, draft := range validated.Valid {
			r.fail(
				current,
				fmt.Sprintf("Failed to fetch unresolved references of %s with key: '%s'.", r.Descriptor.Kind, draft.Key()),
				err,
				existing[draft.Key()],
				draft,
				nil,
			)
		}
		return
	}

	for _, draft := range validated.Valid {
		_, hadPending := pending[draft.Key()]
		r.syncDraft(ctx, current, draft, existing[draft.Key()], hadPending)
	}
}

func (r *DefaultReconciler) fetchExisting(ctx context.Context, keys []string) (map[string]*resource.Resource, error) {
	started := time.Now()
	existing, err := platform.FetchByKeys(ctx, r.Client, r.Descriptor.Kind, keys, r.Options.PageSize)
	r.observeCall("query", started, err)
	if err != nil {
		return nil, err
	}
	for _, item := range existing {
		r.Cache.Put(r.Descriptor.Kind, item.Key, item.ID)
	}
	return existing, nil
}

// syncDraft runs one draft through resolution and the create or update path.
// Drafts sharing a key are serialised.
func (r *DefaultReconciler) syncDraft(
	ctx context.Context,
	current *run,
	draft *resource.Draft,
	old *resource.Resource,
	hadPending bool,
) {
	key := draft.Key()
	r.keys.Lock(key)
	defer func() { _ = r.keys.Unlock(key) }()

	outcome, err := r.resolver.Resolve(draft)
	if err != nil {
		r.fail(current, err.Error(), err, old, draft, nil)
		return
	}
	if !outcome.Resolved() {
		r.deferDraft(ctx, current, draft, old, outcome.Missing)
		return
	}

	if old == nil {
		r.create(ctx, current, outcome.Draft, hadPending)
		return
	}
	r.update(ctx, current, old, outcome.Draft, hadPending)
}

func (r *DefaultReconciler) deferDraft(
	ctx context.Context,
	current *run,
	draft *resource.Draft,
	old *resource.Resource,
	missing resource.KeySet,
) {
	record := unresolved.Record{
		Kind:     r.Descriptor.Kind,
		OwnerKey: draft.Key(),
		Missing:  missing,
		Draft:    draft,
	}
	if _, err := r.Store.Save(ctx, record); err != nil {
		r.fail(
			current,
			fmt.Sprintf("Failed to persist unresolved references of %s with key: '%s'.", r.Descriptor.Kind, draft.Key()),
			err,
			old,
			draft,
			nil,
		)
		return
	}
	current.stats.unresolved.Add(1)
	r.observe(OutcomeUnresolved)
	logging.FromContext(ctx).V(logging.DebugLevel).Info(
		"draft deferred",
		"key", draft.Key(),
		"reason", resolve.MissingError(r.Descriptor.Kind, draft.Key(), missing).Error(),
	)
}

func (r *DefaultReconciler) create(ctx context.Context, current *run, draft *resource.Draft, hadPending bool) {
	if r.Options.BeforeCreate != nil {
		hooked, err := r.Options.BeforeCreate(ctx, draft)
		if err != nil {
			r.fail(current, fmt.Sprintf("Failed to prepare %s with key: '%s' for creation.", r.Descriptor.Kind, draft.Key()), err, nil, draft, nil)
			return
		}
		if hooked == nil {
			r.skip(ctx, current, draft, hadPending, "before-create hook returned no draft")
			return
		}
		draft = hooked
	}

	started := time.Now()
	created, err := r.Client.Create(ctx, r.Descriptor.Kind, draft)
	r.observeCall("create", started, err)
	if err != nil {
		cause := faults.NewTypedError(faults.RemoteCallError, "create failed", err)
		r.fail(
			current,
			fmt.Sprintf("Failed to create %s with key: '%s'. Reason: %s", r.Descriptor.Kind, draft.Key(), err.Error()),
			cause,
			nil,
			draft,
			nil,
		)
		return
	}

	r.Cache.Put(r.Descriptor.Kind, created.Key, created.ID)
	current.stats.created.Add(1)
	current.touch(resource.ReferenceKey{Kind: r.Descriptor.Kind, Key: draft.Key()})
	r.observe(OutcomeCreated)
	logging.FromContext(ctx).V(logging.DebugLevel).Info("resource created", "key", draft.Key(), "id", created.ID)
	r.clearPending(ctx, current, draft, hadPending)
}

// clearPending removes the deferred record of an owner that just synced.
func (r *DefaultReconciler) clearPending(ctx context.Context, current *run, draft *resource.Draft, hadPending bool) {
	if !hadPending {
		return
	}
	if err := r.Store.Delete(ctx, r.Descriptor.Kind, draft.Key()); err != nil {
		message := fmt.Sprintf("Failed to delete unresolved references of %s with key: '%s'.", r.Descriptor.Kind, draft.Key())
		current.stats.addError(message)
		r.report(message, err, nil, draft, nil)
	}
}

// skip drops a draft a hook declined. A pending record of the draft is
// cleared: its references did resolve.
func (r *DefaultReconciler) skip(ctx context.Context, current *run, draft *resource.Draft, hadPending bool, reason string) {
	r.observe(OutcomeSkipped)
	logging.FromContext(ctx).V(logging.DebugLevel).Info("draft skipped", "key", draft.Key(), "reason", reason)
	r.clearPending(ctx, current, draft, hadPending)
}

func (r *DefaultReconciler) fail(
	current *run,
	message string,
	cause error,
	old *resource.Resource,
	draft *resource.Draft,
	actions []diff.Action,
) {
	current.stats.failed.Add(1)
	current.stats.addError(message)
	r.observe(OutcomeFailed)
	r.report(message, cause, old, draft, actions)
}

func (r *DefaultReconciler) report(message string, cause error, old *resource.Resource, draft *resource.Draft, actions []diff.Action) {
	if r.Options.ErrorSink != nil {
		r.Options.ErrorSink(message, cause, old, draft, actions)
	}
}

func (r *DefaultReconciler) warn(current *run, message string, draft *resource.Draft, old *resource.Resource) {
	current.stats.addWarning(message)
	if r.Options.WarningSink != nil {
		r.Options.WarningSink(message, draft, old)
	}
}

func (r *DefaultReconciler) observe(outcome Outcome) {
	if r.Options.Observer != nil {
		r.Options.Observer.DraftFinished(r.Descriptor.Kind, outcome)
	}
}

func (r *DefaultReconciler) observeCall(operation string, started time.Time, err error) {
	if r.Options.Observer != nil {
		r.Options.Observer.RemoteCall(r.Descriptor.Kind, operation, time.Since(started), err)
	}
}

func draftKeys(drafts []*resource.Draft) []string {
	keys := make([]string, 0, len(drafts))
	seen := make(map[string]struct{}, len(drafts))
	for _, draft := range drafts {
		key := draft.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
