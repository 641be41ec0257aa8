package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/internal/hooks"
	configfile "github.com/crmarques/catalogsync/internal/providers/config/file"
	httpplatform "github.com/crmarques/catalogsync/internal/providers/platform/http"
	memoryplatform "github.com/crmarques/catalogsync/internal/providers/platform/memory"
	"github.com/crmarques/catalogsync/internal/providers/source/exporter"
	"github.com/crmarques/catalogsync/internal/providers/source/filesystem"
	gitsource "github.com/crmarques/catalogsync/internal/providers/source/git"
	"github.com/crmarques/catalogsync/internal/providers/unresolved/customobjects"
	memorystore "github.com/crmarques/catalogsync/internal/providers/unresolved/memory"
	"github.com/crmarques/catalogsync/internal/providers/unresolved/postgres"
	"github.com/crmarques/catalogsync/internal/telemetry"
	"github.com/crmarques/catalogsync/keycache"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/source"
	"github.com/crmarques/catalogsync/unresolved"
)

// MemoryScheme selects the in-memory platform when used as a base URL
// scheme, for local runs without a remote project.
const MemoryScheme = "memory"

func LoadConfig(ctx context.Context, opts BootstrapConfig) (config.Config, error) {
	loader := configfile.NewFileLoader(opts.ConfigPath)
	if opts.LookupEnv != nil {
		loader = loader.WithLookupEnv(opts.LookupEnv)
	}
	return loader.Load(ctx)
}

// NewRuntime loads the configuration and builds a runtime from it.
func NewRuntime(ctx context.Context, opts BootstrapConfig) (*Runtime, error) {
	cfg, err := LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return Build(ctx, cfg)
}

// Build wires the providers named by cfg. Close releases what Build opened.
func Build(ctx context.Context, cfg config.Config) (*Runtime, error) {
	runtime := &Runtime{
		Config:   cfg,
		Registry: catalog.Default(),
		Metrics:  telemetry.NewMetrics(cfg.Labels),
	}

	target, err := buildPlatform("target", cfg.Target, runtime.Registry)
	if err != nil {
		return nil, err
	}
	runtime.Target = target

	runtime.Cache, err = keycache.New(target, keycache.Options{Size: cfg.Sync.CacheSize, PageSize: cfg.Sync.PageSize})
	if err != nil {
		return nil, err
	}

	runtime.Hooks, err = hooks.New(cfg.Hooks)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := buildStore(cfg.UnresolvedStore.DSN, target, cfg.Sync.PageSize)
	if err != nil {
		return nil, err
	}
	runtime.Store = store
	runtime.addCloser(closeStore)

	drafts, closeDrafts, err := buildDrafts(cfg, runtime.Registry)
	if err != nil {
		_ = runtime.Close()
		return nil, err
	}
	runtime.Drafts = drafts
	runtime.addCloser(closeDrafts)

	logging.FromContext(ctx).V(logging.DebugLevel).Info(
		"runtime ready",
		"target", cfg.Target.BaseURL,
		"project", cfg.Target.ProjectKey,
		"drafts", cfg.Drafts.From,
		"store", storeScheme(cfg.UnresolvedStore.DSN),
	)
	return runtime, nil
}

func (r *Runtime) Close() error {
	var errs []error
	for idx := len(r.closers) - 1; idx >= 0; idx-- {
		if err := r.closers[idx](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) addCloser(closer func() error) {
	if closer != nil {
		r.closers = append(r.closers, closer)
	}
}

func buildPlatform(scope string, cfg config.Platform, registry *catalog.Registry) (platform.Client, error) {
	if isMemoryURL(cfg.BaseURL) {
		return memoryplatform.New(registry), nil
	}
	return httpplatform.NewGateway(
		cfg,
		httpplatform.WithScope(scope),
		httpplatform.WithRegistry(registry),
	)
}

func buildStore(dsn string, target platform.Client, pageSize int) (unresolved.Store, func() error, error) {
	switch scheme := storeScheme(dsn); scheme {
	case "", "platform":
		store := customobjects.NewStore(target)
		if pageSize > 0 {
			store.PageSize = pageSize
		}
		return store, nil, nil
	case MemoryScheme:
		return memorystore.NewStore(), nil, nil
	case "postgres", "postgresql":
		store, err := postgres.NewStore(strings.TrimSpace(dsn))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("unresolved-store.dsn scheme %q is not supported", scheme),
			nil,
		)
	}
}

func buildDrafts(cfg config.Config, registry *catalog.Registry) (source.Source, func() error, error) {
	switch cfg.Drafts.From {
	case config.DraftsFromSource:
		if cfg.Source == nil {
			return nil, nil, faults.NewTypedError(faults.ValidationError, "drafts.from source requires a source platform", nil)
		}
		client, err := buildPlatform("source", *cfg.Source, registry)
		if err != nil {
			return nil, nil, err
		}
		drafts, err := exporter.New(
			client,
			exporter.WithRegistry(registry),
			exporter.WithPageSize(cfg.Sync.PageSize),
		)
		if err != nil {
			return nil, nil, err
		}
		return drafts, nil, nil
	case config.DraftsFromGit:
		if cfg.Drafts.Git == nil {
			return nil, nil, faults.NewTypedError(faults.ValidationError, "drafts.git is required", nil)
		}
		drafts, err := gitsource.NewSource(*cfg.Drafts.Git)
		if err != nil {
			return nil, nil, err
		}
		return drafts, drafts.Close, nil
	case config.DraftsFromFilesystem, "":
		if cfg.Drafts.Filesystem == nil {
			return nil, nil, faults.NewTypedError(faults.ValidationError, "drafts.filesystem.dir is required", nil)
		}
		drafts, err := filesystem.NewSource(*cfg.Drafts.Filesystem)
		if err != nil {
			return nil, nil, err
		}
		return drafts, nil, nil
	default:
		return nil, nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("drafts.from %q is not supported", cfg.Drafts.From),
			nil,
		)
	}
}

func isMemoryURL(raw string) bool {
	return storeScheme(raw) == MemoryScheme
}

func storeScheme(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Scheme)
}
