package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/faults"
)

// Build returns nil when settings is nil so the transport keeps its
// defaults. Scope prefixes error messages, for example "target".
func Build(settings *config.TLS, scope string) (*tls.Config, error) {
	if settings == nil {
		return nil, nil
	}

	result := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: settings.InsecureSkipVerify,
	}

	pool, err := rootCAs(strings.TrimSpace(settings.CACertFile), scope)
	if err != nil {
		return nil, err
	}
	result.RootCAs = pool

	certificates, err := clientCertificates(
		strings.TrimSpace(settings.ClientCertFile),
		strings.TrimSpace(settings.ClientKeyFile),
		scope,
	)
	if err != nil {
		return nil, err
	}
	result.Certificates = certificates

	return result, nil
}

func rootCAs(caFile string, scope string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, invalid(scope+".tls.ca-cert-file could not be read", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, invalid(scope+".tls.ca-cert-file is not valid PEM", nil)
	}
	return pool, nil
}

func clientCertificates(certFile string, keyFile string, scope string) ([]tls.Certificate, error) {
	switch {
	case certFile == "" && keyFile == "":
		return nil, nil
	case certFile == "" || keyFile == "":
		return nil, invalid(scope+".tls requires both client-cert-file and client-key-file", nil)
	}
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, invalid(scope+".tls client certificate pair is invalid", err)
	}
	return []tls.Certificate{pair}, nil
}

func invalid(message string, cause error) error {
	return faults.NewTypedError(faults.ValidationError, message, cause)
}
