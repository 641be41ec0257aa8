package platform

import (
	"context"

	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/resource"
)

// Query selects resources of one kind. Keys and IDs are alternative
// predicates; with neither set every resource is paged through.
type Query struct {
	Keys   []string
	IDs    []string
	Limit  int
	Offset int
}

type Page struct {
	Results []*resource.Resource
	Offset  int
	Total   int
}

// HasMore reports whether another page follows this one.
func (p Page) HasMore() bool {
	return p.Offset+len(p.Results) < p.Total && len(p.Results) > 0
}

// CustomObject is a key-value document stored under a container.
type CustomObject struct {
	Container string
	Key       string
	Value     any
	Version   int64
}

// Client is the transport collaborator the reconciliation engine consumes.
// Errors are faults.TypedError values: ConflictError on a version mismatch,
// NotFoundError, ValidationError for rejected requests, TransportError for
// everything on the wire.
type Client interface {
	Query(ctx context.Context, kind resource.Kind, query Query) (Page, error)
	// LookupIDs maps keys to ids; keys that do not exist are absent.
	LookupIDs(ctx context.Context, kind resource.Kind, keys []string) (map[string]string, error)
	// LookupKeys maps ids to keys; ids that do not exist are absent.
	LookupKeys(ctx context.Context, kind resource.Kind, ids []string) (map[string]string, error)
	Create(ctx context.Context, kind resource.Kind, draft *resource.Draft) (*resource.Resource, error)
	Update(ctx context.Context, kind resource.Kind, id string, version int64, actions []diff.Action) (*resource.Resource, error)

	UpsertCustomObject(ctx context.Context, object CustomObject) (CustomObject, error)
	QueryCustomObjects(ctx context.Context, container string, keys []string) ([]CustomObject, error)
	DeleteCustomObject(ctx context.Context, container string, key string) error
}
