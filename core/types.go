package core

import (
	"github.com/crmarques/catalogsync/catalog"
	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/internal/hooks"
	"github.com/crmarques/catalogsync/internal/telemetry"
	"github.com/crmarques/catalogsync/keycache"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/reconciler"
	"github.com/crmarques/catalogsync/source"
	"github.com/crmarques/catalogsync/unresolved"
)

type BootstrapConfig struct {
	ConfigPath string
	// LookupEnv resolves ${NAME} placeholders; nil uses the process
	// environment.
	LookupEnv func(string) (string, bool)
}

// Runtime holds the collaborators of one invocation, built from a Config.
type Runtime struct {
	Config   config.Config
	Registry *catalog.Registry
	Target   platform.Client
	Drafts   source.Source
	Store    unresolved.Store
	// Cache is shared by every reconciler of the runtime.
	Cache   *keycache.Cache
	Hooks   *hooks.Set
	Metrics *telemetry.Metrics

	closers []func() error
}

// Sinks receive the per-draft errors and warnings of a run.
type Sinks struct {
	Errors   reconciler.ErrorSink
	Warnings reconciler.WarningSink
}
