package config

import (
	"os"
	"path/filepath"

	"vidforge/internal/domain"
)

const (
	// DefaultPrimaryMirror hosts the published engine core bundle.
	DefaultPrimaryMirror = "https://unpkg.com/@vidforge/engine-core@1.2.0/dist"
	// DefaultBackupMirror mirrors the same bundle on a second CDN.
	DefaultBackupMirror = "https://cdn.jsdelivr.net/npm/@vidforge/engine-core@1.2.0/dist"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		LocalAssetDir: filepath.Join(homeDir, ".vidforge", "engine"),
		PrimaryMirror: DefaultPrimaryMirror,
		BackupMirror:  DefaultBackupMirror,
		RetryAttempts: 3,
		WarmupSeconds: 2,
		GraceSeconds:  3,
		RunnerPath:    "wasmtime",
		CacheDir:      filepath.Join(homeDir, ".vidforge", "cache"),
		OutputDir:     filepath.Join(homeDir, "Videos", "Converted"),
	}
}

// Normalize fills zero-valued tuning fields with their defaults.
func Normalize(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.WarmupSeconds <= 0 {
		cfg.WarmupSeconds = def.WarmupSeconds
	}
	if cfg.GraceSeconds <= 0 {
		cfg.GraceSeconds = def.GraceSeconds
	}
	if cfg.RunnerPath == "" {
		cfg.RunnerPath = def.RunnerPath
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = def.CacheDir
	}
	return cfg
}
