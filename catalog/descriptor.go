package catalog

import (
	"fmt"
	"sort"

	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

type ReferenceMode int

const (
	// ReferenceValue addresses a reference object, or any list or object
	// structure holding reference objects at arbitrary depth.
	ReferenceValue ReferenceMode = iota
	// ReferenceAttributeType addresses an attribute type tree whose nested
	// type references point at product types.
	ReferenceAttributeType
)

// ReferenceField declares where a kind's drafts carry references. Target is
// the kind the reference must point at; an empty Target accepts any kind.
type ReferenceField struct {
	Path   resource.FieldPath
	Target resource.Kind
	Mode   ReferenceMode
}

// KnownAttributes restricts the named-value field Field to the names defined
// by the resource the draft references through Source. Product attributes are
// restricted to the attribute definitions of their product type this way.
type KnownAttributes struct {
	Field      string
	Source     string
	SourceKind resource.Kind
	NamesField string
	NameKey    string
}

// Descriptor is the capability table of one resource kind.
type Descriptor struct {
	Kind       resource.Kind
	Endpoint   string
	References []ReferenceField
	Engine     *diff.Engine
	Known      *KnownAttributes
	// SystemFields are platform-managed and dropped when a resource is
	// exported as a draft.
	SystemFields []string
}

// Syncable reports whether drafts of this kind can be created and updated.
func (d *Descriptor) Syncable() bool {
	return d != nil && d.Engine != nil
}

// StripSystemFields returns a copy of payload without platform-managed fields.
func (d *Descriptor) StripSystemFields(payload map[string]any) map[string]any {
	copied, _ := resource.DeepCopy(payload).(map[string]any)
	if copied == nil {
		return map[string]any{}
	}
	for _, field := range d.SystemFields {
		delete(copied, field)
	}
	return copied
}

// ReferencedKinds lists the kinds the descriptor's references can point at,
// sorted. Fields accepting any kind are skipped.
func (d *Descriptor) ReferencedKinds() []resource.Kind {
	seen := map[resource.Kind]struct{}{}
	for _, field := range d.References {
		if field.Target != "" {
			seen[field.Target] = struct{}{}
		}
	}
	kinds := make([]resource.Kind, 0, len(seen))
	for kind := range seen {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i int, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Registry resolves descriptors by kind.
type Registry struct {
	descriptors map[resource.Kind]*Descriptor
	order       []resource.Kind
}

func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	registry := &Registry{descriptors: make(map[resource.Kind]*Descriptor, len(descriptors))}
	for _, descriptor := range descriptors {
		if descriptor == nil || descriptor.Kind == "" {
			return nil, faults.NewTypedError(faults.ValidationError, "descriptor kind is required", nil)
		}
		if _, dup := registry.descriptors[descriptor.Kind]; dup {
			return nil, faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("kind %q is registered more than once", descriptor.Kind),
				nil,
			)
		}
		if descriptor.Endpoint == "" {
			return nil, faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("kind %q has no endpoint", descriptor.Kind),
				nil,
			)
		}
		registry.descriptors[descriptor.Kind] = descriptor
		registry.order = append(registry.order, descriptor.Kind)
	}
	return registry, nil
}

func (r *Registry) Get(kind resource.Kind) (*Descriptor, error) {
	if r != nil {
		if descriptor, ok := r.descriptors[kind]; ok {
			return descriptor, nil
		}
	}
	return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("unsupported resource kind %q", kind), nil)
}

// Kinds lists registered kinds in registration order, which is also the
// order kinds must be synced in so references point backwards.
func (r *Registry) Kinds() []resource.Kind {
	if r == nil {
		return nil
	}
	return append([]resource.Kind(nil), r.order...)
}

// Order sorts the requested kinds by registration order. Unknown kinds are
// rejected.
func (r *Registry) Order(kinds []resource.Kind) ([]resource.Kind, error) {
	if len(kinds) == 0 {
		return r.Kinds(), nil
	}
	requested := make(map[resource.Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		if _, err := r.Get(kind); err != nil {
			return nil, err
		}
		requested[kind] = struct{}{}
	}
	ordered := make([]resource.Kind, 0, len(requested))
	for _, kind := range r.order {
		if _, ok := requested[kind]; ok {
			ordered = append(ordered, kind)
		}
	}
	return ordered, nil
}

// ByEndpoint finds the kind served at a platform endpoint.
func (r *Registry) ByEndpoint(endpoint string) (*Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	for _, kind := range r.order {
		if descriptor := r.descriptors[kind]; descriptor.Endpoint == endpoint {
			return descriptor, true
		}
	}
	return nil, false
}
