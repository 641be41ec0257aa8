package file

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/faults"
)

var _ config.Loader = (*FileLoader)(nil)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// FileLoader reads a YAML config file. ${NAME} placeholders in scalar values
// are replaced with environment variables before decoding.
type FileLoader struct {
	path      string
	lookupEnv func(string) (string, bool)
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path, lookupEnv: os.LookupEnv}
}

// WithLookupEnv replaces the environment lookup, for tests.
func (l *FileLoader) WithLookupEnv(lookup func(string) (string, bool)) *FileLoader {
	if l == nil || lookup == nil {
		return l
	}
	l.lookupEnv = lookup
	return l
}

func (l *FileLoader) Load(_ context.Context) (config.Config, error) {
	path, err := l.resolvePath()
	if err != nil {
		return config.Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.Config{}, faults.NewTypedError(faults.NotFoundError, fmt.Sprintf("config file %q not found", path), err)
		}
		return config.Config{}, internalError(fmt.Sprintf("failed to read config file %q", path), err)
	}

	cfg, err := decodeConfig(data, l.lookupEnv)
	if err != nil {
		return config.Config{}, err
	}
	cfg = applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (l *FileLoader) resolvePath() (string, error) {
	path := strings.TrimSpace(l.path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(config.ConfigFileEnvVar))
	}
	if path == "" {
		path = config.DefaultConfigPath
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", internalError("failed to resolve user home directory", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return filepath.Clean(path), nil
}

func decodeConfig(data []byte, lookupEnv func(string) (string, bool)) (config.Config, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return config.Config{}, validationError("invalid config yaml", err)
	}
	if document.Kind == 0 {
		return config.Config{}, validationError("config file is empty", nil)
	}
	if err := expandPlaceholders(&document, lookupEnv); err != nil {
		return config.Config{}, err
	}

	expanded, err := yaml.Marshal(&document)
	if err != nil {
		return config.Config{}, internalError("failed to re-encode config yaml", err)
	}

	var cfg config.Config
	decoder := yaml.NewDecoder(bytes.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return config.Config{}, validationError("invalid config yaml", err)
	}
	return cfg, nil
}

func expandPlaceholders(node *yaml.Node, lookupEnv func(string) (string, bool)) error {
	if node.Kind == yaml.ScalarNode && strings.Contains(node.Value, "${") {
		var missing []string
		node.Value = placeholderPattern.ReplaceAllStringFunc(node.Value, func(match string) string {
			name := placeholderPattern.FindStringSubmatch(match)[1]
			value, ok := lookupEnv(name)
			if !ok {
				missing = append(missing, name)
				return match
			}
			return value
		})
		if len(missing) > 0 {
			return validationError(fmt.Sprintf("config references unset environment variables %v at line %d", missing, node.Line), nil)
		}
		// Plain scalars re-resolve their tag so "${RPS}" can feed a number.
		if node.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) == 0 {
			node.Tag = ""
		}
		return nil
	}
	for _, child := range node.Content {
		if err := expandPlaceholders(child, lookupEnv); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg config.Config) config.Config {
	if strings.TrimSpace(cfg.UnresolvedStore.DSN) == "" {
		cfg.UnresolvedStore.DSN = config.DefaultUnresolvedStoreDSN
	}
	if strings.TrimSpace(cfg.Drafts.From) == "" {
		cfg.Drafts.From = config.DraftsFromFilesystem
	}
	return cfg
}

func validateConfig(cfg config.Config) error {
	if err := validatePlatform("target", cfg.Target); err != nil {
		return err
	}
	if cfg.Source != nil {
		if err := validatePlatform("source", *cfg.Source); err != nil {
			return err
		}
	}

	switch cfg.Drafts.From {
	case config.DraftsFromSource:
		if cfg.Source == nil {
			return validationError("drafts.from source requires a source platform", nil)
		}
	case config.DraftsFromFilesystem:
		if cfg.Drafts.Filesystem == nil || strings.TrimSpace(cfg.Drafts.Filesystem.Dir) == "" {
			return validationError("drafts.filesystem.dir is required", nil)
		}
	case config.DraftsFromGit:
		if cfg.Drafts.Git == nil || strings.TrimSpace(cfg.Drafts.Git.URL) == "" {
			return validationError("drafts.git.url is required", nil)
		}
		if auth := cfg.Drafts.Git.Auth; auth != nil && auth.BasicAuth != nil && auth.AccessKey != nil {
			return validationError("drafts.git.auth must define at most one auth mode", nil)
		}
	default:
		return validationError(fmt.Sprintf("drafts.from %q is not supported", cfg.Drafts.From), nil)
	}

	if err := validateStoreDSN(cfg.UnresolvedStore.DSN); err != nil {
		return err
	}
	if cfg.Telemetry.Tracing != nil && strings.TrimSpace(cfg.Telemetry.Tracing.Endpoint) == "" {
		return validationError("telemetry.tracing.endpoint is required", nil)
	}
	return nil
}

func validatePlatform(scope string, platform config.Platform) error {
	if strings.TrimSpace(platform.BaseURL) == "" {
		return validationError(scope+".base-url is required", nil)
	}
	if strings.TrimSpace(platform.ProjectKey) == "" {
		return validationError(scope+".project-key is required", nil)
	}
	if platform.RequestsPerSecond < 0 {
		return validationError(scope+".requests-per-second must not be negative", nil)
	}
	return nil
}

func validateStoreDSN(dsn string) error {
	parsed, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return validationError("unresolved-store.dsn is invalid", err)
	}
	switch parsed.Scheme {
	case "platform", "memory", "postgres", "postgresql":
		return nil
	default:
		return validationError(fmt.Sprintf("unresolved-store.dsn scheme %q is not supported", parsed.Scheme), nil)
	}
}

func validationError(message string, cause error) error {
	return faults.NewTypedError(faults.ValidationError, message, cause)
}

func internalError(message string, cause error) error {
	return faults.NewTypedError(faults.InternalError, message, cause)
}
