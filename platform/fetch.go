package platform

import (
	"context"

	"github.com/crmarques/catalogsync/resource"
)

// DefaultPageSize is the page size used for batched lookups.
const DefaultPageSize = 500

// Chunk splits values into consecutive slices of at most size elements.
func Chunk[T any](values []T, size int) [][]T {
	if size <= 0 {
		size = DefaultPageSize
	}
	chunks := make([][]T, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// FetchByKeys reads the resources with the given keys, pageSize keys per
// request. Missing keys are absent from the result.
func FetchByKeys(ctx context.Context, client Client, kind resource.Kind, keys []string, pageSize int) (map[string]*resource.Resource, error) {
	return fetchBy(ctx, client, kind, keys, pageSize, func(chunk []string) Query {
		return Query{Keys: chunk, Limit: len(chunk)}
	}, func(item *resource.Resource) string { return item.Key })
}

// FetchByIDs is FetchByKeys for ids.
func FetchByIDs(ctx context.Context, client Client, kind resource.Kind, ids []string, pageSize int) (map[string]*resource.Resource, error) {
	return fetchBy(ctx, client, kind, ids, pageSize, func(chunk []string) Query {
		return Query{IDs: chunk, Limit: len(chunk)}
	}, func(item *resource.Resource) string { return item.ID })
}

func fetchBy(
	ctx context.Context,
	client Client,
	kind resource.Kind,
	values []string,
	pageSize int,
	build func([]string) Query,
	identity func(*resource.Resource) string,
) (map[string]*resource.Resource, error) {
	found := make(map[string]*resource.Resource, len(values))
	for _, chunk := range Chunk(dedupe(values), pageSize) {
		page, err := client.Query(ctx, kind, build(chunk))
		if err != nil {
			return nil, err
		}
		for _, item := range page.Results {
			if item != nil {
				found[identity(item)] = item
			}
		}
	}
	return found, nil
}

// All pages through every resource of a kind.
func All(ctx context.Context, client Client, kind resource.Kind, pageSize int, fn func(*resource.Resource) error) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	offset := 0
	for {
		page, err := client.Query(ctx, kind, Query{Limit: pageSize, Offset: offset})
		if err != nil {
			return err
		}
		for _, item := range page.Results {
			if err := fn(item); err != nil {
				return err
			}
		}
		if !page.HasMore() {
			return nil
		}
		offset += len(page.Results)
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	return unique
}
