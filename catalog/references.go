package catalog

import (
	"strings"

	"github.com/crmarques/catalogsync/resource"
)

// Rewrite replaces every reference the field addresses with fn's result and
// returns the rewritten copy of payload. A bare string at a field with a
// Target kind is read as a key of that kind.
func (f ReferenceField) Rewrite(payload map[string]any, fn func(resource.Reference) (resource.Reference, error)) (map[string]any, error) {
	return f.Path.Rewrite(payload, func(value any) (any, error) {
		if f.Mode == ReferenceAttributeType {
			return rewriteAttributeType(value, fn)
		}
		if key, ok := value.(string); ok && f.Target != "" {
			original := resource.Reference{TypeID: f.Target, Key: strings.TrimSpace(key)}
			rewritten, err := fn(original)
			if err != nil {
				return nil, err
			}
			if rewritten == original {
				return value, nil
			}
			return rewritten.Value(), nil
		}
		return resource.MapReferences(value, fn)
	})
}

func rewriteAttributeType(value any, fn func(resource.Reference) (resource.Reference, error)) (any, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := resource.ParseAttributeType(value)
	if err != nil {
		return nil, err
	}
	if len(resource.NestedReferences(parsed)) == 0 {
		return value, nil
	}
	rewritten, err := resource.MapNestedReferences(parsed, fn)
	if err != nil {
		return nil, err
	}
	return resource.EncodeAttributeType(rewritten), nil
}

// References lists every reference the field addresses in payload.
func (f ReferenceField) References(payload map[string]any) ([]resource.Reference, error) {
	var refs []resource.Reference
	_, err := f.Rewrite(payload, func(ref resource.Reference) (resource.Reference, error) {
		refs = append(refs, ref)
		return ref, nil
	})
	return refs, err
}
