package resource

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crmarques/catalogsync/faults"
)

type Value = any

type Kind string

const (
	KindState          Kind = "state"
	KindProductType    Kind = "product-type"
	KindProduct        Kind = "product"
	KindCategory       Kind = "category"
	KindInventoryEntry Kind = "inventory-entry"
	KindShoppingList   Kind = "shopping-list"
	KindType           Kind = "type"
	KindTaxCategory    Kind = "tax-category"
	KindChannel        Kind = "channel"
	KindCustomer       Kind = "customer"
	KindCustomObject   Kind = "key-value-document"
)

func (k Kind) String() string { return string(k) }

// Draft is the desired state of one resource. Payload holds the platform draft
// shape, including the "key" attribute.
type Draft struct {
	Kind    Kind
	Payload map[string]any
}

// NewDraft normalizes payload and returns a draft of the given kind.
func NewDraft(kind Kind, payload map[string]any) (*Draft, error) {
	normalized, err := Normalize(payload)
	if err != nil {
		return nil, err
	}
	object, ok := normalized.(map[string]any)
	if !ok {
		object = map[string]any{}
	}
	return &Draft{Kind: kind, Payload: object}, nil
}

func MustDraft(kind Kind, payload map[string]any) *Draft {
	draft, err := NewDraft(kind, payload)
	if err != nil {
		panic(err)
	}
	return draft
}

func (d *Draft) Key() string {
	if d == nil {
		return ""
	}
	key, _ := d.Payload["key"].(string)
	return strings.TrimSpace(key)
}

// Name renders the draft's name attribute for messages. Localized names are
// rendered as JSON.
func (d *Draft) Name() string {
	if d == nil {
		return ""
	}
	switch typed := d.Payload["name"].(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	}
}

func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	copied, _ := DeepCopy(d.Payload).(map[string]any)
	if copied == nil {
		copied = map[string]any{}
	}
	return &Draft{Kind: d.Kind, Payload: copied}
}

func (d *Draft) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.Payload)
}

// Resource is the current state of a resource on a platform.
type Resource struct {
	Kind    Kind
	ID      string
	Key     string
	Version int64
	Payload map[string]any
}

// NewResource extracts identity attributes from a normalized platform payload.
func NewResource(kind Kind, payload map[string]any) (*Resource, error) {
	normalized, err := Normalize(payload)
	if err != nil {
		return nil, err
	}
	object, ok := normalized.(map[string]any)
	if !ok {
		return nil, faults.NewTypedError(faults.ValidationError, "resource payload must be an object", nil)
	}

	id, _ := object["id"].(string)
	key, _ := object["key"].(string)
	version, err := versionOf(object["version"])
	if err != nil {
		return nil, err
	}

	return &Resource{
		Kind:    kind,
		ID:      id,
		Key:     key,
		Version: version,
		Payload: object,
	}, nil
}

func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	copied, _ := DeepCopy(r.Payload).(map[string]any)
	return &Resource{
		Kind:    r.Kind,
		ID:      r.ID,
		Key:     r.Key,
		Version: r.Version,
		Payload: copied,
	}
}

func (r *Resource) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return json.Marshal(r.Payload)
}

func versionOf(value any) (int64, error) {
	switch typed := value.(type) {
	case nil:
		return 0, nil
	case int64:
		return typed, nil
	case float64:
		return int64(typed), nil
	default:
		return 0, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("resource version has unsupported type %T", value),
			nil,
		)
	}
}
