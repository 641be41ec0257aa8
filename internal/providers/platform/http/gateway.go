package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/internal/providers/shared/tlsconfig"
	"github.com/crmarques/catalogsync/platform"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultMediaType   = "application/json"
	maxResponseBytes   = 8 << 20

	customObjectsEndpoint = "custom-objects"
)

var _ platform.Client = (*Gateway)(nil)

// Gateway talks to the commerce platform REST API under
// {base-url}/{project-key}/{endpoint}.
type Gateway struct {
	scope          string
	baseURL        *url.URL
	projectKey     string
	defaultHeaders map[string]string
	auth           authConfig
	client         *http.Client
	limiter        *rate.Limiter
	registry       *catalog.Registry
	tlsDebug       tlsDebugInfo

	oauthMu          sync.Mutex
	oauthAccessToken string
	oauthExpiresAt   time.Time
}

type GatewayOption func(*Gateway)

// WithScope names the config section the gateway was built from, used in
// validation messages ("target" or "source").
func WithScope(scope string) GatewayOption {
	return func(g *Gateway) {
		if g == nil || strings.TrimSpace(scope) == "" {
			return
		}
		g.scope = scope
	}
}

func WithRegistry(registry *catalog.Registry) GatewayOption {
	return func(g *Gateway) {
		if g == nil || registry == nil {
			return
		}
		g.registry = registry
	}
}

// WithHTTPClient replaces the transport client. The TLS settings of the
// config are not applied to a replaced client.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) {
		if g == nil || client == nil {
			return
		}
		g.client = client
	}
}

func NewGateway(cfg config.Platform, opts ...GatewayOption) (*Gateway, error) {
	gateway := &Gateway{
		scope:          "target",
		projectKey:     strings.TrimSpace(cfg.ProjectKey),
		defaultHeaders: cloneStringMap(cfg.DefaultHeaders),
		registry:       catalog.Default(),
		tlsDebug:       newTLSDebugInfo(cfg.TLS),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(gateway)
	}

	baseURL, err := parseBaseURL(gateway.scope, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	gateway.baseURL = baseURL
	if gateway.projectKey == "" {
		return nil, validationError(gateway.scope+".project-key is required", nil)
	}

	auth, err := buildAuthConfig(gateway.scope, cfg.Auth)
	if err != nil {
		return nil, err
	}
	gateway.auth = auth

	if gateway.client == nil {
		tlsConfig, err := tlsconfig.Build(cfg.TLS, gateway.scope)
		if err != nil {
			return nil, err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		gateway.client = &http.Client{Timeout: defaultHTTPTimeout, Transport: transport}
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RequestsPerSecond))
		}
		gateway.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return gateway, nil
}

func parseBaseURL(scope string, raw string) (*url.URL, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, validationError(scope+".base-url is required", nil)
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return nil, validationError(scope+".base-url is invalid", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, validationError(scope+".base-url must use http or https", nil)
	}
	if parsed.Host == "" {
		return nil, validationError(scope+".base-url host is required", nil)
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed, nil
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}

	cloned := make(map[string]string, len(values))
	for key, value := range values {
		cloned[key] = value
	}
	return cloned
}

func (g *Gateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return transportError("rate limiter wait aborted", err)
	}
	return nil
}
