package keycache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
)

const (
	DefaultSize     = 10000
	DefaultPageSize = platform.DefaultPageSize
)

// Lookup is the batched key/id lookup the cache populates from.
type Lookup interface {
	LookupIDs(ctx context.Context, kind resource.Kind, keys []string) (map[string]string, error)
	LookupKeys(ctx context.Context, kind resource.Kind, ids []string) (map[string]string, error)
}

type Options struct {
	Size     int
	PageSize int
}

type idKey struct {
	kind resource.Kind
	id   string
}

// Cache maps resource keys to ids and back. Both directions are bounded LRU
// maps, safe for concurrent use. Concurrent populations of the same key are
// not deduplicated.
type Cache struct {
	lookup   Lookup
	pageSize int
	ids      *lru.Cache[resource.ReferenceKey, string]
	keys     *lru.Cache[idKey, string]
}

func New(lookup Lookup, opts Options) (*Cache, error) {
	if lookup == nil {
		return nil, faults.NewTypedError(faults.ValidationError, "key cache requires a lookup client", nil)
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	ids, err := lru.New[resource.ReferenceKey, string](size)
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to allocate key cache", err)
	}
	keys, err := lru.New[idKey, string](size)
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to allocate key cache", err)
	}

	return &Cache{lookup: lookup, pageSize: pageSize, ids: ids, keys: keys}, nil
}

// Get returns the cached id of a key.
func (c *Cache) Get(key resource.ReferenceKey) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.ids.Get(key)
}

// KeyOf returns the cached key of an id.
func (c *Cache) KeyOf(kind resource.Kind, id string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.keys.Get(idKey{kind: kind, id: id})
}

// Put records a mapping, for example after a create.
func (c *Cache) Put(kind resource.Kind, key string, id string) {
	if c == nil || key == "" || id == "" {
		return
	}
	c.ids.Add(resource.ReferenceKey{Kind: kind, Key: key}, id)
	c.keys.Add(idKey{kind: kind, id: id}, key)
}

// Invalidate drops keys so the next Populate fetches them again.
func (c *Cache) Invalidate(keys ...resource.ReferenceKey) {
	if c == nil {
		return
	}
	for _, key := range keys {
		if id, ok := c.ids.Peek(key); ok {
			c.keys.Remove(idKey{kind: key.Kind, id: id})
		}
		c.ids.Remove(key)
	}
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.ids.Len()
}

// Populate looks up every key not yet cached, one goroutine per kind and
// pageSize keys per request. Any lookup failure fails the whole call with a
// CacheBuildError; mappings fetched before the failure are kept.
func (c *Cache) Populate(ctx context.Context, keys resource.KeySet) error {
	if c == nil || len(keys) == 0 {
		return nil
	}

	missing := make(map[resource.Kind][]string)
	for kind, kindKeys := range keys.ByKind() {
		for _, key := range kindKeys {
			if !c.ids.Contains(resource.ReferenceKey{Kind: kind, Key: key}) {
				missing[kind] = append(missing[kind], key)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for kind, kindKeys := range missing {
		group.Go(func() error {
			return c.populateKind(groupCtx, kind, kindKeys)
		})
	}
	if err := group.Wait(); err != nil {
		return faults.NewTypedError(faults.CacheBuildError, "Failed to build a cache of keys to ids.", err)
	}
	return nil
}

func (c *Cache) populateKind(ctx context.Context, kind resource.Kind, keys []string) error {
	found := 0
	for _, chunk := range platform.Chunk(keys, c.pageSize) {
		mapping, err := c.lookup.LookupIDs(ctx, kind, chunk)
		if err != nil {
			return fmt.Errorf("lookup %s ids: %w", kind, err)
		}
		for key, id := range mapping {
			c.Put(kind, key, id)
			found++
		}
	}
	logging.FromContext(ctx).V(logging.DebugLevel).Info(
		"populated key cache",
		"kind", kind,
		"requested", len(keys),
		"found", found,
	)
	return nil
}

// PopulateIDs is the reverse of Populate: it caches the keys of ids not yet
// known. Used when exporting resources whose references carry ids.
func (c *Cache) PopulateIDs(ctx context.Context, kind resource.Kind, ids []string) error {
	if c == nil {
		return nil
	}
	var missing []string
	for _, id := range ids {
		if id != "" && !c.keys.Contains(idKey{kind: kind, id: id}) {
			missing = append(missing, id)
		}
	}
	for _, chunk := range platform.Chunk(missing, c.pageSize) {
		mapping, err := c.lookup.LookupKeys(ctx, kind, chunk)
		if err != nil {
			return faults.NewTypedError(faults.CacheBuildError, "Failed to build a cache of ids to keys.", err)
		}
		for id, key := range mapping {
			c.Put(kind, key, id)
		}
	}
	return nil
}
