package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/logging"
)

type tlsDebugInfo struct {
	enabled            bool
	insecureSkipVerify bool
	caCertFile         string
	clientCertFile     string
}

func newTLSDebugInfo(tlsSettings *config.TLS) tlsDebugInfo {
	if tlsSettings == nil {
		return tlsDebugInfo{}
	}

	return tlsDebugInfo{
		enabled:            true,
		insecureSkipVerify: tlsSettings.InsecureSkipVerify,
		caCertFile:         strings.TrimSpace(tlsSettings.CACertFile),
		clientCertFile:     strings.TrimSpace(tlsSettings.ClientCertFile),
	}
}

func (g *Gateway) doRequest(ctx context.Context, purpose string, request *http.Request) (*http.Response, error) {
	logger := logging.FromContext(ctx).V(logging.DebugLevel).WithValues(
		"purpose", purpose,
		"method", request.Method,
		"url", redactURLForDebug(request.URL),
	)
	logger.Info(
		"http request",
		"tlsEnabled", g.tlsDebug.enabled,
		"tlsInsecureSkipVerify", g.tlsDebug.insecureSkipVerify,
		"tlsCACertFile", g.tlsDebug.caCertFile,
		"tlsClientCertFile", g.tlsDebug.clientCertFile,
	)

	started := time.Now()
	response, err := g.client.Do(request)
	if err != nil {
		logger.Info("http request failed", "error", err.Error(), "elapsed", time.Since(started))
		return nil, err
	}

	logger.Info("http response", "status", response.StatusCode, "elapsed", time.Since(started))
	return response, nil
}

func redactURLForDebug(value *url.URL) string {
	if value == nil {
		return ""
	}

	cloned := *value
	cloned.User = nil

	query := cloned.Query()
	if secret := query.Get("client_secret"); secret != "" {
		query.Set("client_secret", "<redacted>")
		cloned.RawQuery = query.Encode()
	}

	return cloned.String()
}
