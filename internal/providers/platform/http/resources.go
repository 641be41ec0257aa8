package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
)

type pagedResponse struct {
	Offset  int
	Total   int
	Results []map[string]any
}

func decodePagedResponse(body []byte) (pagedResponse, error) {
	object, err := decodeJSONObject(body)
	if err != nil {
		return pagedResponse{}, err
	}

	decoded := pagedResponse{
		Offset: intField(object, "offset"),
		Total:  intField(object, "total"),
	}
	results, _ := object["results"].([]any)
	for idx, item := range results {
		entry, ok := item.(map[string]any)
		if !ok {
			return pagedResponse{}, validationError(fmt.Sprintf("paged response result %d is not an object", idx), nil)
		}
		decoded.Results = append(decoded.Results, entry)
	}
	if _, hasTotal := object["total"]; !hasTotal {
		decoded.Total = decoded.Offset + len(decoded.Results)
	}
	return decoded, nil
}

func intField(object map[string]any, name string) int {
	value, _ := object[name].(int64)
	return int(value)
}

func (g *Gateway) endpoint(kind resource.Kind) (string, error) {
	descriptor, err := g.registry.Get(kind)
	if err != nil {
		return "", err
	}
	return descriptor.Endpoint, nil
}

func (g *Gateway) Query(ctx context.Context, kind resource.Kind, query platform.Query) (platform.Page, error) {
	endpoint, err := g.endpoint(kind)
	if err != nil {
		return platform.Page{}, err
	}

	var predicates []string
	if len(query.Keys) > 0 {
		predicates = append(predicates, inPredicate("key", query.Keys))
	}
	if len(query.IDs) > 0 {
		predicates = append(predicates, inPredicate("id", query.IDs))
	}
	values := pageQuery(query.Limit, query.Offset, predicates...)
	values.Set("withTotal", "true")

	body, err := g.execute(ctx, call{
		purpose:  "query",
		method:   http.MethodGet,
		segments: []string{endpoint},
		query:    values,
	})
	if err != nil {
		return platform.Page{}, err
	}

	decoded, err := decodePagedResponse(body)
	if err != nil {
		return platform.Page{}, err
	}
	page := platform.Page{Offset: decoded.Offset, Total: decoded.Total}
	for _, payload := range decoded.Results {
		item, err := resource.NewResource(kind, payload)
		if err != nil {
			return platform.Page{}, err
		}
		page.Results = append(page.Results, item)
	}
	return page, nil
}

func (g *Gateway) LookupIDs(ctx context.Context, kind resource.Kind, keys []string) (map[string]string, error) {
	return g.lookup(ctx, kind, platform.Query{Keys: keys}, func(item *resource.Resource) (string, string) {
		return item.Key, item.ID
	})
}

func (g *Gateway) LookupKeys(ctx context.Context, kind resource.Kind, ids []string) (map[string]string, error) {
	return g.lookup(ctx, kind, platform.Query{IDs: ids}, func(item *resource.Resource) (string, string) {
		return item.ID, item.Key
	})
}

func (g *Gateway) lookup(
	ctx context.Context,
	kind resource.Kind,
	query platform.Query,
	pair func(*resource.Resource) (string, string),
) (map[string]string, error) {
	found := map[string]string{}
	if len(query.Keys) == 0 && len(query.IDs) == 0 {
		return found, nil
	}
	query.Limit = min(max(len(query.Keys), len(query.IDs)), platform.DefaultPageSize)

	for {
		page, err := g.Query(ctx, kind, query)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Results {
			from, to := pair(item)
			if from != "" && to != "" {
				found[from] = to
			}
		}
		if !page.HasMore() {
			return found, nil
		}
		query.Offset = page.Offset + len(page.Results)
	}
}

func (g *Gateway) Create(ctx context.Context, kind resource.Kind, draft *resource.Draft) (*resource.Resource, error) {
	if draft == nil {
		return nil, validationError("draft is required", nil)
	}
	endpoint, err := g.endpoint(kind)
	if err != nil {
		return nil, err
	}

	body, err := g.execute(ctx, call{
		purpose:  "create",
		method:   http.MethodPost,
		segments: []string{endpoint},
		body:     draft.Payload,
	})
	if err != nil {
		return nil, err
	}
	return decodeResource(kind, body)
}

func (g *Gateway) Update(ctx context.Context, kind resource.Kind, id string, version int64, actions []diff.Action) (*resource.Resource, error) {
	endpoint, err := g.endpoint(kind)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, validationError("resource id is required for update", nil)
	}

	encodedActions := make([]any, len(actions))
	for idx, action := range actions {
		params := resource.DeepCopy(action.Params).(map[string]any)
		params["action"] = action.Name
		encodedActions[idx] = params
	}

	body, err := g.execute(ctx, call{
		purpose:  "update",
		method:   http.MethodPost,
		segments: []string{endpoint, id},
		body: map[string]any{
			"version": version,
			"actions": encodedActions,
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeResource(kind, body)
}

func decodeResource(kind resource.Kind, body []byte) (*resource.Resource, error) {
	object, err := decodeJSONObject(body)
	if err != nil {
		return nil, err
	}
	return resource.NewResource(kind, object)
}
