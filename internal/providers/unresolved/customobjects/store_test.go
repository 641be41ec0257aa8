package customobjects

import (
	"context"
	"reflect"
	"testing"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/internal/providers/platform/memory"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/unresolved"
)

func stateRef(key string) resource.ReferenceKey {
	return resource.ReferenceKey{Kind: resource.KindState, Key: key}
}

func record(owner string, name string, missing ...string) unresolved.Record {
	keys := resource.NewKeySet()
	for _, key := range missing {
		keys.Add(stateRef(key))
	}
	return unresolved.Record{
		Kind:     resource.KindState,
		OwnerKey: owner,
		Missing:  keys,
		Draft:    resource.MustDraft(resource.KindState, map[string]any{"key": owner, "name": name}),
	}
}

func TestSaveStoresDocumentUnderHashedKey(t *testing.T) {
	t.Parallel()

	client := memory.New(nil)
	store := NewStore(client)
	ctx := context.Background()

	if _, err := store.Save(ctx, record("s1", "first", "s2")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	objects, err := client.QueryCustomObjects(ctx, "catalogsync.unresolved.state", nil)
	if err != nil {
		t.Fatalf("QueryCustomObjects returned error: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != ObjectKey("s1") || len(objects[0].Key) != 40 {
		t.Fatalf("unexpected objects %#v", objects)
	}
	expected := map[string]any{
		"key":                   "s1",
		"missingReferencedKeys": []any{map[string]any{"typeId": "state", "key": "s2"}},
		"draft":                 map[string]any{"key": "s1", "name": "first"},
	}
	if !reflect.DeepEqual(objects[0].Value, expected) {
		t.Fatalf("unexpected document %#v", objects[0].Value)
	}
}

func TestSaveMergesRepeatedDeferrals(t *testing.T) {
	t.Parallel()

	store := NewStore(memory.New(nil))
	ctx := context.Background()

	if _, err := store.Save(ctx, record("s1", "first", "s2")); err != nil {
		t.Fatalf("first Save returned error: %v", err)
	}
	merged, err := store.Save(ctx, record("s1", "second", "s3"))
	if err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}

	expected := []resource.ReferenceKey{stateRef("s2"), stateRef("s3")}
	if !reflect.DeepEqual(merged.Missing.Sorted(), expected) {
		t.Fatalf("expected union of missing keys, got %v", merged.Missing.Sorted())
	}

	fetched, err := store.Fetch(ctx, resource.KindState, []string{"s1", "absent"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(fetched) != 1 || fetched["s1"].Draft.Payload["name"] != "second" {
		t.Fatalf("expected the newest draft, got %#v", fetched)
	}
}

// conflictOnceClient lets a concurrent writer replace the object right
// before the next versioned upsert.
type conflictOnceClient struct {
	*memory.Platform
	armed bool
}

func (c *conflictOnceClient) UpsertCustomObject(ctx context.Context, object platform.CustomObject) (platform.CustomObject, error) {
	if c.armed {
		c.armed = false
		concurrent, _ := encodeRecord(record("s1", "concurrent", "s9"))
		if _, err := c.Platform.UpsertCustomObject(ctx, platform.CustomObject{Container: object.Container, Key: object.Key, Value: concurrent}); err != nil {
			return platform.CustomObject{}, err
		}
	}
	return c.Platform.UpsertCustomObject(ctx, object)
}

func TestSaveMergesAgainAfterConcurrentWrite(t *testing.T) {
	t.Parallel()

	client := &conflictOnceClient{Platform: memory.New(nil)}
	store := NewStore(client)
	ctx := context.Background()
	if _, err := store.Save(ctx, record("s1", "old", "s0")); err != nil {
		t.Fatalf("first Save returned error: %v", err)
	}
	client.armed = true

	merged, err := store.Save(ctx, record("s1", "mine", "s2"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	expected := []resource.ReferenceKey{stateRef("s2"), stateRef("s9")}
	if !reflect.DeepEqual(merged.Missing.Sorted(), expected) {
		t.Fatalf("expected the concurrent keys to be kept, got %v", merged.Missing.Sorted())
	}
	if merged.Draft.Payload["name"] != "mine" {
		t.Fatalf("expected the incoming draft to win, got %#v", merged.Draft.Payload)
	}
}

func TestWaitingOnListAndDelete(t *testing.T) {
	t.Parallel()

	store := NewStore(memory.New(nil))
	ctx := context.Background()
	for _, item := range []unresolved.Record{record("b", "b", "x"), record("a", "a", "x", "y"), record("c", "c", "z")} {
		if _, err := store.Save(ctx, item); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}

	waiting, err := store.WaitingOn(ctx, resource.KindState, resource.NewKeySet(stateRef("x")))
	if err != nil {
		t.Fatalf("WaitingOn returned error: %v", err)
	}
	if len(waiting) != 2 || waiting[0].OwnerKey != "a" || waiting[1].OwnerKey != "b" {
		t.Fatalf("unexpected waiting records %#v", waiting)
	}

	if err := store.Delete(ctx, resource.KindState, "a"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := store.Delete(ctx, resource.KindState, "a"); err != nil {
		t.Fatalf("deleting a missing record must succeed, got %v", err)
	}

	listed, err := store.List(ctx, resource.KindState)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(listed) != 2 || listed[0].OwnerKey != "b" {
		t.Fatalf("unexpected records %#v", listed)
	}
}

func TestSaveRejectsRecordWithoutDraft(t *testing.T) {
	t.Parallel()

	_, err := NewStore(memory.New(nil)).Save(context.Background(), unresolved.Record{Kind: resource.KindState, OwnerKey: "s1"})
	if !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
