package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
)

const correlationHeader = "X-Correlation-ID"

type call struct {
	purpose  string
	method   string
	segments []string
	query    url.Values
	body     any
}

// execute sends one call and returns the response body of a successful
// status. A 401 with OAuth2 is retried once with a fresh token.
func (g *Gateway) execute(ctx context.Context, c call) ([]byte, error) {
	body, status, err := g.send(ctx, c)
	if err != nil && status == http.StatusUnauthorized && g.auth.mode == authModeOAuth2 {
		g.invalidateToken()
		body, _, err = g.send(ctx, c)
	}
	return body, err
}

func (g *Gateway) send(ctx context.Context, c call) ([]byte, int, error) {
	if err := g.wait(ctx); err != nil {
		return nil, 0, err
	}

	request, err := g.newRequest(ctx, c)
	if err != nil {
		return nil, 0, err
	}

	response, err := g.doRequest(ctx, c.purpose, request)
	if err != nil {
		return nil, 0, transportError("remote request failed", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, response.StatusCode, transportError("failed to read remote response body", err)
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, response.StatusCode, classifyStatusError(response.StatusCode, body)
	}
	return body, response.StatusCode, nil
}

func (g *Gateway) newRequest(ctx context.Context, c call) (*http.Request, error) {
	target := *g.baseURL
	target.RawPath = ""
	target.Path = path.Join(append([]string{g.baseURL.Path, g.projectKey}, c.segments...)...)
	target.RawQuery = c.query.Encode()

	var bodyReader io.Reader
	if c.body != nil {
		encoded, err := encodeRequestBody(c.body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, c.method, target.String(), bodyReader)
	if err != nil {
		return nil, internalError("failed to create remote request", err)
	}

	if len(g.defaultHeaders) > 0 {
		keys := make([]string, 0, len(g.defaultHeaders))
		for key := range g.defaultHeaders {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			request.Header.Set(key, g.defaultHeaders[key])
		}
	}
	request.Header.Set("Accept", defaultMediaType)
	if c.body != nil {
		request.Header.Set("Content-Type", defaultMediaType)
	}
	if id := platform.CorrelationID(ctx); id != "" {
		request.Header.Set(correlationHeader, id)
	}

	if err := g.applyAuth(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

func encodeRequestBody(body any) ([]byte, error) {
	normalized, err := resource.Normalize(body)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return nil, validationError("failed to encode JSON request body", err)
	}
	return encoded, nil
}

func decodeJSONObject(body []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var value map[string]any
	if err := decoder.Decode(&value); err != nil {
		return nil, validationError("response body is not a JSON object", err)
	}

	normalized, err := resource.Normalize(value)
	if err != nil {
		return nil, err
	}
	object, _ := normalized.(map[string]any)
	return object, nil
}

// inPredicate renders a `field in ("a", "b")` query predicate.
func inPredicate(field string, values []string) string {
	quoted := make([]string, len(values))
	for idx, value := range values {
		quoted[idx] = strconv.Quote(value)
	}
	return field + " in (" + strings.Join(quoted, ", ") + ")"
}

func pageQuery(limit int, offset int, predicates ...string) url.Values {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
	for _, predicate := range predicates {
		values.Add("where", predicate)
	}
	return values
}
