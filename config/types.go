package config

import "context"

const (
	ConfigFileEnvVar  = "CATALOGSYNC_CONFIG"
	DefaultConfigPath = "catalogsync.yaml"
	OAuthClientCreds  = "client_credentials"

	DraftsFromSource     = "source"
	DraftsFromFilesystem = "filesystem"
	DraftsFromGit        = "git"

	DefaultUnresolvedStoreDSN = "platform://"
)

// Loader resolves and decodes the configuration.
type Loader interface {
	Load(ctx context.Context) (Config, error)
}

type Config struct {
	// Source is the environment drafts are exported from when Drafts.From
	// is "source".
	Source          *Platform         `yaml:"source,omitempty"`
	Target          Platform          `yaml:"target"`
	Sync            Sync              `yaml:"sync,omitempty"`
	UnresolvedStore UnresolvedStore   `yaml:"unresolved-store,omitempty"`
	Drafts          Drafts            `yaml:"drafts"`
	Hooks           map[string]Hooks  `yaml:"hooks,omitempty"`
	Telemetry       Telemetry         `yaml:"telemetry,omitempty"`
	Labels          map[string]string `yaml:"labels,omitempty"`
}

type Platform struct {
	BaseURL           string            `yaml:"base-url"`
	ProjectKey        string            `yaml:"project-key"`
	DefaultHeaders    map[string]string `yaml:"default-headers,omitempty"`
	Auth              *HTTPAuth         `yaml:"auth,omitempty"`
	TLS               *TLS              `yaml:"tls,omitempty"`
	RequestsPerSecond float64           `yaml:"requests-per-second,omitempty"`
	Burst             int               `yaml:"burst,omitempty"`
}

type HTTPAuth struct {
	OAuth2       *OAuth2          `yaml:"oauth2,omitempty"`
	BasicAuth    *BasicAuth       `yaml:"basic-auth,omitempty"`
	BearerToken  *BearerTokenAuth `yaml:"bearer-token,omitempty"`
	CustomHeader *HeaderTokenAuth `yaml:"custom-header,omitempty"`
}

type OAuth2 struct {
	TokenURL     string `yaml:"token-url"`
	GrantType    string `yaml:"grant-type"`
	ClientID     string `yaml:"client-id"`
	ClientSecret string `yaml:"client-secret"`
	Scope        string `yaml:"scope,omitempty"`
	Audience     string `yaml:"audience,omitempty"`
}

type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type BearerTokenAuth struct {
	Token string `yaml:"token"`
}

type HeaderTokenAuth struct {
	Header string `yaml:"header"`
	Token  string `yaml:"token"`
}

type TLS struct {
	CACertFile         string `yaml:"ca-cert-file,omitempty"`
	ClientCertFile     string `yaml:"client-cert-file,omitempty"`
	ClientKeyFile      string `yaml:"client-key-file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure-skip-verify,omitempty"`
}

// Sync sizes. Values of zero or less fall back to the reconciler defaults.
type Sync struct {
	BatchSize   int `yaml:"batch-size,omitempty"`
	Parallelism int `yaml:"parallelism,omitempty"`
	CacheSize   int `yaml:"cache-size,omitempty"`
	PageSize    int `yaml:"page-size,omitempty"`
}

type UnresolvedStore struct {
	// DSN is one of platform://, memory:// or a postgres:// connection URL.
	DSN string `yaml:"dsn,omitempty"`
}

type Drafts struct {
	From       string            `yaml:"from"`
	Filesystem *FilesystemDrafts `yaml:"filesystem,omitempty"`
	Git        *GitDrafts        `yaml:"git,omitempty"`
}

type FilesystemDrafts struct {
	Dir string `yaml:"dir"`
}

type GitDrafts struct {
	URL      string   `yaml:"url"`
	Branch   string   `yaml:"branch,omitempty"`
	Dir      string   `yaml:"dir,omitempty"`
	CloneDir string   `yaml:"clone-dir,omitempty"`
	Auth     *GitAuth `yaml:"auth,omitempty"`
}

type GitAuth struct {
	BasicAuth *BasicAuth     `yaml:"basic-auth,omitempty"`
	AccessKey *AccessKeyAuth `yaml:"access-key,omitempty"`
}

type AccessKeyAuth struct {
	Token string `yaml:"token"`
}

// Hooks are jq programs applied to drafts or update actions of one kind.
type Hooks struct {
	BeforeCreate string `yaml:"before-create,omitempty"`
	BeforeUpdate string `yaml:"before-update,omitempty"`
}

type Telemetry struct {
	MetricsAddress string   `yaml:"metrics-address,omitempty"`
	Tracing        *Tracing `yaml:"tracing,omitempty"`
}

type Tracing struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure,omitempty"`
}
