package validation

import (
	"fmt"
	"strings"

	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

// Failure is a draft rejected before resolution. Draft is nil for null
// input elements.
type Failure struct {
	Draft *resource.Draft
	Err   error
}

func (f Failure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

type Result struct {
	Valid []*resource.Draft
	// Keys holds every valid draft's own key and every key its references
	// still need resolved.
	Keys     resource.KeySet
	Failures []Failure
}

type Validator struct {
	descriptor *catalog.Descriptor
}

func New(descriptor *catalog.Descriptor) *Validator {
	return &Validator{descriptor: descriptor}
}

// Validate splits drafts into valid drafts and failures. Input order is kept
// in both.
func (v *Validator) Validate(drafts []*resource.Draft) Result {
	result := Result{Keys: resource.NewKeySet()}
	for _, draft := range drafts {
		keys, err := v.validateDraft(draft)
		if err != nil {
			result.Failures = append(result.Failures, Failure{Draft: draft, Err: err})
			continue
		}
		result.Valid = append(result.Valid, draft)
		result.Keys.AddAll(keys)
	}
	return result
}

func (v *Validator) validateDraft(draft *resource.Draft) (resource.KeySet, error) {
	kind := v.descriptor.Kind
	if draft == nil {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("%s draft is null", kind), nil)
	}
	if draft.Kind != "" && draft.Kind != kind {
		return nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("%s draft with key: %q was passed to the %s sync", draft.Kind, draft.Key(), kind),
			nil,
		)
	}
	if draft.Key() == "" {
		return nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("%s draft with name: %s doesn't have a key. Please make sure all %s drafts have keys.", kind, draft.Name(), kind),
			nil,
		)
	}

	keys := resource.NewKeySet(resource.ReferenceKey{Kind: kind, Key: draft.Key()})
	var invalid []string
	for _, field := range v.descriptor.References {
		fieldKeys, ok := referenceKeys(field, draft.Payload)
		if !ok {
			invalid = append(invalid, field.Path.String())
			continue
		}
		keys.AddAll(fieldKeys)
	}
	if len(invalid) > 0 {
		return nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf(
				"%s draft with key: %q has invalid references on the following fields: [%s]",
				kind,
				draft.Key(),
				strings.Join(invalid, ", "),
			),
			nil,
		)
	}
	return keys, nil
}

// referenceKeys collects the keys a field still needs resolved. A reference
// is invalid without both id and key, or when it points at another kind than
// the field allows.
func referenceKeys(field catalog.ReferenceField, payload map[string]any) (resource.KeySet, bool) {
	refs, err := field.References(payload)
	if err != nil {
		return nil, false
	}
	keys := resource.NewKeySet()
	for _, ref := range refs {
		if ref.TypeID == "" {
			return nil, false
		}
		if field.Target != "" && ref.TypeID != field.Target {
			return nil, false
		}
		if ref.IsResolved() {
			continue
		}
		if ref.Key == "" {
			return nil, false
		}
		keys.Add(ref.ReferenceKey())
	}
	return keys, true
}
