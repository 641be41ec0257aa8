package reconciler

import (
	"context"
	"fmt"

	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
)

// metadataFor loads the names a draft's restricted field may use, such as the
// attribute names of a product's product type. Lookups are memoised per run.
// A failed lookup leaves the field unrestricted and is reported as a warning.
func (r *DefaultReconciler) metadataFor(
	ctx context.Context,
	current *run,
	draft *resource.Draft,
	old *resource.Resource,
) diff.Metadata {
	known := r.Descriptor.Known
	if known == nil {
		return diff.Metadata{}
	}
	ref, ok := resource.ParseReference(draft.Payload[known.Source])
	if !ok || !ref.IsResolved() {
		return diff.Metadata{}
	}

	current.mu.Lock()
	names, cached := current.known[ref.ID]
	current.mu.Unlock()
	if !cached {
		fetched, err := platform.FetchByIDs(ctx, r.Client, known.SourceKind, []string{ref.ID}, 1)
		if err != nil {
			r.warn(
				current,
				fmt.Sprintf("Failed to fetch %s %q for %s with key: '%s'; %s are not checked.", known.SourceKind, ref.ID, r.Descriptor.Kind, draft.Key(), known.Field),
				draft,
				old,
			)
			return diff.Metadata{}
		}
		names = []string{}
		if source, found := fetched[ref.ID]; found {
			for _, item := range asList(source.Payload[known.NamesField]) {
				if object, ok := item.(map[string]any); ok {
					if name, ok := object[known.NameKey].(string); ok {
						names = append(names, name)
					}
				}
			}
		}
		current.mu.Lock()
		current.known[ref.ID] = names
		current.mu.Unlock()
	}

	return diff.Metadata{KnownNames: map[string][]string{known.Field: names}}
}

func asList(value any) []any {
	items, _ := value.([]any)
	return items
}
