package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
)

var _ platform.Client = (*Platform)(nil)

// Platform is an in-process platform. Updates are applied with the kind's
// diff engine and guarded by resource versions.
type Platform struct {
	registry *catalog.Registry

	mu        sync.Mutex
	sequence  int
	resources map[resource.Kind][]*resource.Resource
	objects   map[string]map[string]platform.CustomObject
	calls     map[string]int
}

func New(registry *catalog.Registry) *Platform {
	if registry == nil {
		registry = catalog.Default()
	}
	return &Platform{
		registry:  registry,
		resources: map[resource.Kind][]*resource.Resource{},
		objects:   map[string]map[string]platform.CustomObject{},
		calls:     map[string]int{},
	}
}

// Calls reports how many times an operation ("query", "create", "update",
// "lookup", "upsertObject", ...) was invoked.
func (p *Platform) Calls(operation string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[operation]
}

// Seed stores a resource as if it had been created earlier.
func (p *Platform) Seed(kind resource.Kind, payload map[string]any) (*resource.Resource, error) {
	draft, err := resource.NewDraft(kind, payload)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createLocked(kind, draft)
}

// Mutate changes a stored resource outside of the update protocol and bumps
// its version, simulating a concurrent writer.
func (p *Platform) Mutate(kind resource.Kind, key string, fn func(payload map[string]any)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := p.findLocked(kind, func(item *resource.Resource) bool { return item.Key == key })
	if stored == nil {
		return faults.NewTypedError(faults.NotFoundError, fmt.Sprintf("%s %q not found", kind, key), nil)
	}
	fn(stored.Payload)
	stored.Version++
	stored.Payload["version"] = stored.Version
	return nil
}

// Remove deletes a stored resource, simulating a concurrent delete.
func (p *Platform) Remove(kind resource.Kind, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.resources[kind][:0]
	for _, item := range p.resources[kind] {
		if item.Key != key {
			kept = append(kept, item)
		}
	}
	p.resources[kind] = kept
}

// Get returns a copy of the stored resource with key.
func (p *Platform) Get(kind resource.Kind, key string) (*resource.Resource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := p.findLocked(kind, func(item *resource.Resource) bool { return item.Key == key })
	if stored == nil {
		return nil, false
	}
	return stored.Clone(), true
}

func (p *Platform) Query(_ context.Context, kind resource.Kind, query platform.Query) (platform.Page, error) {
	if _, err := p.registry.Get(kind); err != nil {
		return platform.Page{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["query"]++

	keys := set(query.Keys)
	ids := set(query.IDs)
	var matched []*resource.Resource
	for _, item := range p.resources[kind] {
		if len(keys) > 0 && !has(keys, item.Key) {
			continue
		}
		if len(ids) > 0 && !has(ids, item.ID) {
			continue
		}
		matched = append(matched, item)
	}

	offset := min(max(query.Offset, 0), len(matched))
	end := len(matched)
	if query.Limit > 0 {
		end = min(offset+query.Limit, len(matched))
	}
	page := platform.Page{Offset: offset, Total: len(matched)}
	for _, item := range matched[offset:end] {
		page.Results = append(page.Results, item.Clone())
	}
	return page, nil
}

func (p *Platform) LookupIDs(_ context.Context, kind resource.Kind, keys []string) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["lookup"]++

	wanted := set(keys)
	found := map[string]string{}
	for _, item := range p.resources[kind] {
		if has(wanted, item.Key) {
			found[item.Key] = item.ID
		}
	}
	return found, nil
}

func (p *Platform) LookupKeys(_ context.Context, kind resource.Kind, ids []string) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["lookup"]++

	wanted := set(ids)
	found := map[string]string{}
	for _, item := range p.resources[kind] {
		if has(wanted, item.ID) {
			found[item.ID] = item.Key
		}
	}
	return found, nil
}

func (p *Platform) Create(_ context.Context, kind resource.Kind, draft *resource.Draft) (*resource.Resource, error) {
	if draft == nil {
		return nil, faults.NewTypedError(faults.ValidationError, "draft is required", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["create"]++

	return p.createLocked(kind, draft)
}

func (p *Platform) createLocked(kind resource.Kind, draft *resource.Draft) (*resource.Resource, error) {
	if _, err := p.registry.Get(kind); err != nil {
		return nil, err
	}
	key := draft.Key()
	if key != "" && p.findLocked(kind, func(item *resource.Resource) bool { return item.Key == key }) != nil {
		return nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("A duplicate value '\"%s\"' exists for field 'key'.", key),
			nil,
		)
	}

	p.sequence++
	payload := draft.Clone().Payload
	id := fmt.Sprintf("%s-%04d", kind, p.sequence)
	payload["id"] = id
	payload["version"] = int64(1)

	created, err := resource.NewResource(kind, payload)
	if err != nil {
		return nil, err
	}
	p.resources[kind] = append(p.resources[kind], created)
	return created.Clone(), nil
}

func (p *Platform) Update(_ context.Context, kind resource.Kind, id string, version int64, actions []diff.Action) (*resource.Resource, error) {
	descriptor, err := p.registry.Get(kind)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["update"]++

	stored := p.findLocked(kind, func(item *resource.Resource) bool { return item.ID == id })
	if stored == nil {
		return nil, faults.NewTypedError(faults.NotFoundError, fmt.Sprintf("%s with id %q not found", kind, id), nil)
	}
	if stored.Version != version {
		return nil, faults.NewTypedError(
			faults.ConflictError,
			fmt.Sprintf("Object %s has a different version than expected. Expected: %d - Actual: %d.", id, version, stored.Version),
			nil,
		)
	}
	if !descriptor.Syncable() {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("%s does not accept updates", kind), nil)
	}

	applied, err := descriptor.Engine.Apply(stored.Payload, actions)
	if err != nil {
		return nil, err
	}
	stored.Version++
	applied["id"] = stored.ID
	applied["version"] = stored.Version
	stored.Payload = applied
	return stored.Clone(), nil
}

func (p *Platform) findLocked(kind resource.Kind, match func(*resource.Resource) bool) *resource.Resource {
	for _, item := range p.resources[kind] {
		if match(item) {
			return item
		}
	}
	return nil
}

func (p *Platform) UpsertCustomObject(_ context.Context, object platform.CustomObject) (platform.CustomObject, error) {
	if object.Container == "" || object.Key == "" {
		return platform.CustomObject{}, faults.NewTypedError(faults.ValidationError, "custom object container and key are required", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["upsertObject"]++

	container, ok := p.objects[object.Container]
	if !ok {
		container = map[string]platform.CustomObject{}
		p.objects[object.Container] = container
	}
	existing, found := container[object.Key]
	if object.Version > 0 && (!found || existing.Version != object.Version) {
		return platform.CustomObject{}, faults.NewTypedError(
			faults.ConflictError,
			fmt.Sprintf("custom object %s/%s has a different version than expected", object.Container, object.Key),
			nil,
		)
	}

	normalized, err := resource.Normalize(object.Value)
	if err != nil {
		return platform.CustomObject{}, err
	}
	stored := platform.CustomObject{
		Container: object.Container,
		Key:       object.Key,
		Value:     normalized,
		Version:   existing.Version + 1,
	}
	container[object.Key] = stored
	return copyObject(stored), nil
}

func (p *Platform) QueryCustomObjects(_ context.Context, container string, keys []string) ([]platform.CustomObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["queryObjects"]++

	wanted := set(keys)
	objects := make([]platform.CustomObject, 0)
	for key, object := range p.objects[container] {
		if len(wanted) > 0 && !has(wanted, key) {
			continue
		}
		objects = append(objects, copyObject(object))
	}
	sort.Slice(objects, func(i int, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (p *Platform) DeleteCustomObject(_ context.Context, container string, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["deleteObject"]++

	if _, found := p.objects[container][key]; !found {
		return faults.NewTypedError(faults.NotFoundError, fmt.Sprintf("custom object %s/%s not found", container, key), nil)
	}
	delete(p.objects[container], key)
	return nil
}

func copyObject(object platform.CustomObject) platform.CustomObject {
	object.Value = resource.DeepCopy(object.Value)
	return object
}

func set(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, value := range values {
		out[value] = struct{}{}
	}
	return out
}

func has(values map[string]struct{}, value string) bool {
	_, ok := values[value]
	return ok
}
