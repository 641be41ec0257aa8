package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/faults"
)

const validConfigYAML = `
target:
  base-url: https://api.example.com
  project-key: shop-prod
  requests-per-second: ${TARGET_RPS}
  auth:
    oauth2:
      token-url: https://auth.example.com/oauth/token
      grant-type: client_credentials
      client-id: sync
      client-secret: ${TARGET_SECRET}
sync:
  batch-size: 20
drafts:
  from: filesystem
  filesystem:
    dir: ./drafts
hooks:
  product:
    before-create: '.key |= ascii_downcase'
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalogsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	return path
}

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		value, ok := values[name]
		return value, ok
	}
}

func TestLoadExpandsPlaceholdersAndAppliesDefaults(t *testing.T) {
	t.Parallel()

	loader := NewFileLoader(writeConfig(t, validConfigYAML)).WithLookupEnv(fakeEnv(map[string]string{
		"TARGET_RPS":    "12.5",
		"TARGET_SECRET": "s3cr3t",
	}))

	cfg, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Target.Auth.OAuth2.ClientSecret != "s3cr3t" {
		t.Fatalf("expected expanded secret, got %q", cfg.Target.Auth.OAuth2.ClientSecret)
	}
	if cfg.Target.RequestsPerSecond != 12.5 {
		t.Fatalf("expected numeric placeholder to decode, got %v", cfg.Target.RequestsPerSecond)
	}
	if cfg.Sync.BatchSize != 20 || cfg.Sync.Parallelism != 0 {
		t.Fatalf("unexpected sync config %#v", cfg.Sync)
	}
	if cfg.UnresolvedStore.DSN != config.DefaultUnresolvedStoreDSN {
		t.Fatalf("expected default store dsn, got %q", cfg.UnresolvedStore.DSN)
	}
	if cfg.Hooks["product"].BeforeCreate != ".key |= ascii_downcase" {
		t.Fatalf("unexpected hooks %#v", cfg.Hooks)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		env      map[string]string
		contains string
	}{
		{
			name:     "unknown field",
			content:  "target:\n  base-url: https://x\n  project-key: p\n  unknown: true\ndrafts:\n  filesystem:\n    dir: d\n",
			contains: "invalid config yaml",
		},
		{
			name:     "unset placeholder",
			content:  "target:\n  base-url: ${MISSING_URL}\n  project-key: p\n",
			contains: "MISSING_URL",
		},
		{
			name:     "missing project key",
			content:  "target:\n  base-url: https://x\ndrafts:\n  filesystem:\n    dir: d\n",
			contains: "target.project-key is required",
		},
		{
			name:     "source drafts without source",
			content:  "target:\n  base-url: https://x\n  project-key: p\ndrafts:\n  from: source\n",
			contains: "requires a source platform",
		},
		{
			name:     "unsupported store",
			content:  "target:\n  base-url: https://x\n  project-key: p\ndrafts:\n  filesystem:\n    dir: d\nunresolved-store:\n  dsn: redis://localhost\n",
			contains: `scheme "redis"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewFileLoader(writeConfig(t, tt.content)).WithLookupEnv(fakeEnv(tt.env)).Load(context.Background())
			if !faults.IsCategory(err, faults.ValidationError) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Fatalf("expected error containing %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestLoadMissingFileIsNotFound(t *testing.T) {
	t.Parallel()

	_, err := NewFileLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load(context.Background())
	if !faults.IsCategory(err, faults.NotFoundError) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
