package exporter

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/keycache"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/source"
)

var _ source.Source = (*Exporter)(nil)

type Option func(*Exporter)

func WithRegistry(registry *catalog.Registry) Option {
	return func(e *Exporter) {
		if registry != nil {
			e.registry = registry
		}
	}
}

// WithCache shares a reverse key cache across exports so ids referenced by
// several kinds are looked up once.
func WithCache(cache *keycache.Cache) Option {
	return func(e *Exporter) {
		if cache != nil {
			e.cache = cache
		}
	}
}

func WithPageSize(pageSize int) Option {
	return func(e *Exporter) {
		if pageSize > 0 {
			e.pageSize = pageSize
		}
	}
}

// Exporter reads the resources of a source project and turns them into
// drafts for another project: system fields are dropped and id references
// are rewritten into key references.
type Exporter struct {
	client   platform.Client
	registry *catalog.Registry
	cache    *keycache.Cache
	pageSize int
}

func New(client platform.Client, opts ...Option) (*Exporter, error) {
	if client == nil {
		return nil, faults.NewTypedError(faults.ValidationError, "exporter requires a source platform client", nil)
	}
	exporter := &Exporter{
		client:   client,
		registry: catalog.Default(),
		pageSize: platform.DefaultPageSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(exporter)
		}
	}
	if exporter.cache == nil {
		cache, err := keycache.New(client, keycache.Options{PageSize: exporter.pageSize})
		if err != nil {
			return nil, err
		}
		exporter.cache = cache
	}
	return exporter, nil
}

func (e *Exporter) Drafts(ctx context.Context, kind resource.Kind) ([]*resource.Draft, error) {
	descriptor, err := e.registry.Get(kind)
	if err != nil {
		return nil, err
	}

	var resources []*resource.Resource
	if err := platform.All(ctx, e.client, kind, e.pageSize, func(item *resource.Resource) error {
		if item != nil {
			resources = append(resources, item)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("export %s: %w", kind, err)
	}

	if err := e.populate(ctx, descriptor, resources); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx)
	drafts := make([]*resource.Draft, 0, len(resources))
	for _, item := range resources {
		payload := descriptor.StripSystemFields(item.Payload)
		for _, field := range descriptor.References {
			payload, err = field.Rewrite(payload, func(ref resource.Reference) (resource.Reference, error) {
				if ref.ID == "" {
					return ref, nil
				}
				key, ok := e.cache.KeyOf(ref.TypeID, ref.ID)
				if !ok {
					logger.Info(
						"exported reference points at an unknown resource",
						"kind", kind,
						"key", item.Key,
						"typeId", ref.TypeID,
						"id", ref.ID,
					)
					return resource.Reference{TypeID: ref.TypeID}, nil
				}
				return resource.Reference{TypeID: ref.TypeID, Key: key}, nil
			})
			if err != nil {
				return nil, faults.NewTypedError(
					faults.ValidationError,
					fmt.Sprintf("failed to export %s %q", kind, item.Key),
					err,
				)
			}
		}

		draft, err := resource.NewDraft(kind, payload)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}

	logger.V(logging.DebugLevel).Info("exported drafts", "kind", kind, "count", len(drafts))
	return drafts, nil
}

// populate caches the keys of every id the resources reference, one batch of
// lookups per referenced kind.
func (e *Exporter) populate(ctx context.Context, descriptor *catalog.Descriptor, resources []*resource.Resource) error {
	ids := make(map[resource.Kind][]string)
	for _, item := range resources {
		for _, field := range descriptor.References {
			refs, err := field.References(item.Payload)
			if err != nil {
				return faults.NewTypedError(
					faults.ValidationError,
					fmt.Sprintf("failed to read references of %s %q", descriptor.Kind, item.Key),
					err,
				)
			}
			for _, ref := range refs {
				if ref.ID != "" && ref.TypeID != "" {
					ids[ref.TypeID] = append(ids[ref.TypeID], ref.ID)
				}
			}
		}
	}
	for _, kind := range slices.Sorted(maps.Keys(ids)) {
		if err := e.cache.PopulateIDs(ctx, kind, ids[kind]); err != nil {
			return err
		}
	}
	return nil
}
