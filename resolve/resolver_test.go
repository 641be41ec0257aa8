package resolve

import (
	"reflect"
	"strings"
	"testing"

	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

type mapCache map[resource.ReferenceKey]string

func (c mapCache) Get(key resource.ReferenceKey) (string, bool) {
	id, ok := c[key]
	return id, ok
}

func resolverFor(t *testing.T, kind resource.Kind, cache mapCache) *Resolver {
	t.Helper()

	descriptor, err := catalog.Default().Get(kind)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	return New(descriptor, cache)
}

func TestResolveRewritesKeysToIDs(t *testing.T) {
	t.Parallel()

	cache := mapCache{
		{Kind: resource.KindState, Key: "s2"}: "id-2",
		{Kind: resource.KindState, Key: "s3"}: "id-3",
	}
	draft := resource.MustDraft(resource.KindState, map[string]any{
		"key": "s1",
		"transitions": []any{
			"s2",
			map[string]any{"typeId": "state", "key": "s3"},
			map[string]any{"typeId": "state", "id": "id-9"},
		},
	})

	outcome, err := resolverFor(t, resource.KindState, cache).Resolve(draft)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !outcome.Resolved() {
		t.Fatalf("expected resolution, missing %v", outcome.Missing.Sorted())
	}

	expected := []any{
		map[string]any{"typeId": "state", "id": "id-2"},
		map[string]any{"typeId": "state", "id": "id-3"},
		map[string]any{"typeId": "state", "id": "id-9"},
	}
	if got := outcome.Draft.Payload["transitions"]; !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %#v, got %#v", expected, got)
	}
	if draft.Payload["transitions"].([]any)[0] != "s2" {
		t.Fatal("input draft must not be modified")
	}
}

func TestResolveDefersOnAnyMissingKey(t *testing.T) {
	t.Parallel()

	cache := mapCache{{Kind: resource.KindProductType, Key: "pt"}: "id-pt"}
	draft := resource.MustDraft(resource.KindProduct, map[string]any{
		"key":         "p1",
		"productType": map[string]any{"typeId": "product-type", "key": "pt"},
		"categories": []any{
			map[string]any{"typeId": "category", "key": "c1"},
		},
		"state": map[string]any{"typeId": "state", "key": "s1"},
	})

	outcome, err := resolverFor(t, resource.KindProduct, cache).Resolve(draft)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if outcome.Resolved() || outcome.Draft != nil {
		t.Fatal("expected deferral")
	}
	expected := []resource.ReferenceKey{
		{Kind: resource.KindCategory, Key: "c1"},
		{Kind: resource.KindState, Key: "s1"},
	}
	if got := outcome.Missing.Sorted(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}

	err = MissingError(resource.KindProduct, "p1", outcome.Missing)
	if !faults.IsCategory(err, faults.ReferenceResolutionError) || !strings.Contains(err.Error(), "category:c1, state:s1") {
		t.Fatalf("unexpected missing error %v", err)
	}
}

func TestResolveKeepsNestedAttributeTypeShape(t *testing.T) {
	t.Parallel()

	cache := mapCache{{Kind: resource.KindProductType, Key: "inner"}: "id-inner"}
	draft := resource.MustDraft(resource.KindProductType, map[string]any{
		"key": "outer",
		"attributes": []any{
			map[string]any{"name": "deep", "label": "Deep", "type": map[string]any{
				"name": "set",
				"elementType": map[string]any{
					"name":          "nested",
					"typeReference": map[string]any{"typeId": "product-type", "key": "inner"},
				},
			}},
		},
	})

	outcome, err := resolverFor(t, resource.KindProductType, cache).Resolve(draft)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	attribute := outcome.Draft.Payload["attributes"].([]any)[0].(map[string]any)
	expected := map[string]any{
		"name": "set",
		"elementType": map[string]any{
			"name":          "nested",
			"typeReference": map[string]any{"typeId": "product-type", "id": "id-inner"},
		},
	}
	if !reflect.DeepEqual(attribute["type"], expected) {
		t.Fatalf("expected %#v, got %#v", expected, attribute["type"])
	}
	if attribute["label"] != "Deep" {
		t.Fatalf("sibling fields must survive, got %#v", attribute)
	}
}

func TestResolveDeepReferencesInAttributeValues(t *testing.T) {
	t.Parallel()

	cache := mapCache{
		{Kind: resource.KindProduct, Key: "p2"}:  "id-p2",
		{Kind: resource.KindCategory, Key: "c"}: "id-c",
	}
	draft := resource.MustDraft(resource.KindProduct, map[string]any{
		"key": "p1",
		"attributes": []any{
			map[string]any{"name": "related", "value": []any{
				[]any{map[string]any{"typeId": "product", "key": "p2"}},
				[]any{map[string]any{"typeId": "category", "key": "c"}},
			}},
			map[string]any{"name": "size", "value": int64(4)},
		},
	})

	outcome, err := resolverFor(t, resource.KindProduct, cache).Resolve(draft)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	related := outcome.Draft.Payload["attributes"].([]any)[0].(map[string]any)["value"]
	expected := []any{
		[]any{map[string]any{"typeId": "product", "id": "id-p2"}},
		[]any{map[string]any{"typeId": "category", "id": "id-c"}},
	}
	if !reflect.DeepEqual(related, expected) {
		t.Fatalf("expected %#v, got %#v", expected, related)
	}
}
