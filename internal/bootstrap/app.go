// Package bootstrap wires configuration, the resolver, the worker
// controller, and the orchestrator into a runnable application.
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"vidforge/internal/config"
	"vidforge/internal/convert"
	"vidforge/internal/diagnostics"
	"vidforge/internal/domain"
	"vidforge/internal/engine"
	"vidforge/internal/resolve"
	"vidforge/internal/worker"
)

// App aggregates the wired application components.
type App struct {
	Settings     domain.Settings
	Store        config.Store
	Orchestrator *convert.Orchestrator
	Checker      *diagnostics.Checker
	Logger       hclog.Logger
}

// Options tunes application construction.
type Options struct {
	// ConfigPath overrides the settings file location.
	ConfigPath string
	// Logger overrides the default logger.
	Logger hclog.Logger
	// NewEngine overrides the engine factory, mainly for tests.
	NewEngine func(settings domain.Settings) engine.Engine
}

// New builds the application with persisted settings.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:  "vidforge",
			Level: hclog.Info,
		})
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user home: %w", err)
		}
		configPath = filepath.Join(homeDir, ".vidforge", "settings.json")
	}

	store := config.NewJSONStore(configPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	newEngine := opts.NewEngine
	if newEngine == nil {
		newEngine = defaultEngineFactory
	}

	resolver := resolve.New(settings, logger.Named("resolver"))
	controller := worker.New(
		func() engine.Engine { return newEngine(settings) },
		resolver,
		settings,
		logger.Named("worker"),
	)

	return &App{
		Settings:     settings,
		Store:        store,
		Orchestrator: convert.New(controller, logger.Named("convert")),
		Checker:      diagnostics.NewChecker(resolver),
		Logger:       logger,
	}, nil
}

// defaultEngineFactory builds the production engine backed by an external
// WASM runtime process with a throwaway workspace.
func defaultEngineFactory(settings domain.Settings) engine.Engine {
	workDir, err := os.MkdirTemp("", "vidforge-work-*")
	if err != nil {
		workDir = filepath.Join(os.TempDir(), "vidforge-work")
	}
	return engine.NewCommandEngine(settings.RunnerPath, settings.CacheDir, workDir)
}
