package catalog

import (
	"reflect"
	"testing"

	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

func TestDefaultRegistryOrder(t *testing.T) {
	t.Parallel()

	registry := Default()
	expected := []resource.Kind{
		resource.KindType,
		resource.KindTaxCategory,
		resource.KindChannel,
		resource.KindCustomer,
		resource.KindState,
		resource.KindProductType,
		resource.KindCategory,
		resource.KindProduct,
		resource.KindInventoryEntry,
		resource.KindShoppingList,
	}
	if got := registry.Kinds(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}

	ordered, err := registry.Order([]resource.Kind{resource.KindProduct, resource.KindState, resource.KindProduct})
	if err != nil {
		t.Fatalf("Order returned error: %v", err)
	}
	if !reflect.DeepEqual(ordered, []resource.Kind{resource.KindState, resource.KindProduct}) {
		t.Fatalf("unexpected order %v", ordered)
	}

	if _, err := registry.Order([]resource.Kind{"order"}); !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
}

func TestDescriptorsReferenceRegisteredKinds(t *testing.T) {
	t.Parallel()

	registry := Default()
	for _, kind := range registry.Kinds() {
		descriptor, err := registry.Get(kind)
		if err != nil {
			t.Fatalf("Get(%s) returned error: %v", kind, err)
		}
		if !descriptor.Syncable() {
			t.Fatalf("expected %s to carry an update engine", kind)
		}
		for _, target := range descriptor.ReferencedKinds() {
			if _, err := registry.Get(target); err != nil {
				t.Fatalf("%s references unregistered kind %s", kind, target)
			}
		}
	}

	if descriptor, ok := registry.ByEndpoint("inventory"); !ok || descriptor.Kind != resource.KindInventoryEntry {
		t.Fatalf("expected inventory endpoint to map to inventory-entry, got %#v", descriptor)
	}
}

func TestStripSystemFields(t *testing.T) {
	t.Parallel()

	descriptor, _ := Default().Get(resource.KindState)
	payload := map[string]any{"id": "x", "version": int64(2), "key": "s1", "createdAt": "now"}
	stripped := descriptor.StripSystemFields(payload)
	if !reflect.DeepEqual(stripped, map[string]any{"key": "s1"}) {
		t.Fatalf("unexpected stripped payload %#v", stripped)
	}
	if _, ok := payload["id"]; !ok {
		t.Fatal("input payload must not be modified")
	}
}

func TestStateTransitionsDiffIgnoresOrder(t *testing.T) {
	t.Parallel()

	descriptor, _ := Default().Get(resource.KindState)
	existing := map[string]any{
		"key":     "s1",
		"id":      "id-1",
		"version": int64(4),
		"type":    "LineItemState",
		"transitions": []any{
			map[string]any{"typeId": "state", "id": "id-3"},
			map[string]any{"typeId": "state", "id": "id-2"},
		},
	}
	desired := map[string]any{
		"key":  "s1",
		"type": "LineItemState",
		"transitions": []any{
			map[string]any{"typeId": "state", "id": "id-2"},
			map[string]any{"typeId": "state", "id": "id-3"},
		},
		"roles": []any{"Return"},
	}

	actions, issues := descriptor.Engine.Diff(existing, desired, diff.Metadata{})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues %#v", issues)
	}
	expected := []diff.Action{diff.NewAction("addRoles", map[string]any{"roles": []any{"Return"}})}
	if !reflect.DeepEqual(actions, expected) {
		t.Fatalf("expected %#v, got %#v", expected, actions)
	}
}

func TestProductTypeAttributeTypeChangeReplacesDefinition(t *testing.T) {
	t.Parallel()

	nestedSet := func(id string) map[string]any {
		return map[string]any{"name": "set", "elementType": map[string]any{
			"name": "set",
			"elementType": map[string]any{
				"name":          "nested",
				"typeReference": map[string]any{"typeId": "product-type", "id": id},
			},
		}}
	}
	definition := func(name string, attributeType map[string]any) map[string]any {
		return map[string]any{"name": name, "label": map[string]any{"en": name}, "type": attributeType}
	}

	descriptor, _ := Default().Get(resource.KindProductType)
	existing := map[string]any{"key": "pt", "attributes": []any{
		definition("a", map[string]any{"name": "text"}),
		definition("b", nestedSet("old")),
	}}
	desired := map[string]any{"key": "pt", "attributes": []any{
		definition("a", map[string]any{"name": "number"}),
		definition("b", nestedSet("new")),
	}}

	actions, issues := descriptor.Engine.Diff(existing, desired, diff.Metadata{})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues %#v", issues)
	}
	expected := []string{
		"removeAttributeDefinition",
		"removeAttributeDefinition",
		"addAttributeDefinition",
		"addAttributeDefinition",
	}
	if got := diff.Names(actions); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}

	applied, err := descriptor.Engine.Apply(existing, actions)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if again, _ := descriptor.Engine.Diff(applied, desired, diff.Metadata{}); len(again) != 0 {
		t.Fatalf("expected convergence, got %v", diff.Names(again))
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(stateDescriptor(), stateDescriptor())
	if !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
