package resolve

import (
	"fmt"
	"strings"

	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

// Cache is the read side of the key cache.
type Cache interface {
	Get(key resource.ReferenceKey) (string, bool)
}

type Resolver struct {
	descriptor *catalog.Descriptor
	cache      Cache
}

func New(descriptor *catalog.Descriptor, cache Cache) *Resolver {
	return &Resolver{descriptor: descriptor, cache: cache}
}

// Outcome is either a resolved draft or the keys that kept it from resolving.
type Outcome struct {
	Draft   *resource.Draft
	Missing resource.KeySet
}

func (o Outcome) Resolved() bool {
	return len(o.Missing) == 0 && o.Draft != nil
}

// Resolve rewrites every key reference of draft to an id reference. Fields
// are resolved independently; when any key is absent from the cache the
// outcome carries every missing key and no draft. The input is not modified.
func (r *Resolver) Resolve(draft *resource.Draft) (Outcome, error) {
	if draft == nil {
		return Outcome{}, faults.NewTypedError(faults.ValidationError, "draft is null", nil)
	}

	payload := draft.Payload
	missing := resource.NewKeySet()
	for _, field := range r.descriptor.References {
		rewritten, err := field.Rewrite(payload, func(ref resource.Reference) (resource.Reference, error) {
			if ref.IsResolved() {
				return ref, nil
			}
			id, ok := r.cache.Get(ref.ReferenceKey())
			if !ok {
				missing.Add(ref.ReferenceKey())
				return ref, nil
			}
			return resource.Reference{TypeID: ref.TypeID, ID: id}, nil
		})
		if err != nil {
			return Outcome{}, faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("failed to resolve %s on %s with key: %q", field.Path.String(), r.descriptor.Kind, draft.Key()),
				err,
			)
		}
		payload = rewritten
	}

	if len(missing) > 0 {
		return Outcome{Missing: missing}, nil
	}
	resolved, _ := resource.DeepCopy(payload).(map[string]any)
	return Outcome{Draft: &resource.Draft{Kind: draft.Kind, Payload: resolved}}, nil
}

// MissingError describes a deferred draft for the sinks and logs.
func MissingError(kind resource.Kind, ownerKey string, missing resource.KeySet) error {
	keys := missing.Sorted()
	rendered := make([]string, len(keys))
	for idx, key := range keys {
		rendered[idx] = key.String()
	}
	return faults.NewTypedError(
		faults.ReferenceResolutionError,
		fmt.Sprintf(
			"Failed to resolve references on %s with key: %q. Reason: missing referenced keys [%s]",
			kind,
			ownerKey,
			strings.Join(rendered, ", "),
		),
		nil,
	)
}
