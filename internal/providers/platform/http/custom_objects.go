package http

import (
	"context"
	"net/http"

	"github.com/crmarques/catalogsync/platform"
)

func (g *Gateway) UpsertCustomObject(ctx context.Context, object platform.CustomObject) (platform.CustomObject, error) {
	if object.Container == "" || object.Key == "" {
		return platform.CustomObject{}, validationError("custom object container and key are required", nil)
	}

	payload := map[string]any{
		"container": object.Container,
		"key":       object.Key,
		"value":     object.Value,
	}
	if object.Version > 0 {
		payload["version"] = object.Version
	}

	body, err := g.execute(ctx, call{
		purpose:  "upsert-custom-object",
		method:   http.MethodPost,
		segments: []string{customObjectsEndpoint},
		body:     payload,
	})
	if err != nil {
		return platform.CustomObject{}, err
	}

	decoded, err := decodeJSONObject(body)
	if err != nil {
		return platform.CustomObject{}, err
	}
	return customObjectFrom(decoded), nil
}

// QueryCustomObjects pages through a container. Nil keys selects every
// object of the container.
func (g *Gateway) QueryCustomObjects(ctx context.Context, container string, keys []string) ([]platform.CustomObject, error) {
	if container == "" {
		return nil, validationError("custom object container is required", nil)
	}

	var predicates []string
	if len(keys) > 0 {
		predicates = append(predicates, inPredicate("key", keys))
	}

	objects := make([]platform.CustomObject, 0, len(keys))
	offset := 0
	for {
		body, err := g.execute(ctx, call{
			purpose:  "query-custom-objects",
			method:   http.MethodGet,
			segments: []string{customObjectsEndpoint, container},
			query:    pageQuery(platform.DefaultPageSize, offset, predicates...),
		})
		if err != nil {
			return nil, err
		}

		decoded, err := decodePagedResponse(body)
		if err != nil {
			return nil, err
		}
		for _, item := range decoded.Results {
			objects = append(objects, customObjectFrom(item))
		}

		offset = decoded.Offset + len(decoded.Results)
		if len(decoded.Results) == 0 || offset >= decoded.Total {
			return objects, nil
		}
	}
}

func (g *Gateway) DeleteCustomObject(ctx context.Context, container string, key string) error {
	if container == "" || key == "" {
		return validationError("custom object container and key are required", nil)
	}

	_, err := g.execute(ctx, call{
		purpose:  "delete-custom-object",
		method:   http.MethodDelete,
		segments: []string{customObjectsEndpoint, container, key},
	})
	return err
}

func customObjectFrom(object map[string]any) platform.CustomObject {
	container, _ := object["container"].(string)
	key, _ := object["key"].(string)
	version, _ := object["version"].(int64)
	return platform.CustomObject{
		Container: container,
		Key:       key,
		Value:     object["value"],
		Version:   version,
	}
}
