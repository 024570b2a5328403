package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"vidforge/internal/domain"
	"vidforge/internal/engine"
)

// ErrAllSourcesUnreachable is returned when every candidate source has
// exhausted its attempts.
var ErrAllSourcesUnreachable = errors.New("all asset sources unreachable")

const probeTimeout = 15 * time.Second

// LoadFunc attempts to load the engine from one validated configuration.
type LoadFunc func(ctx context.Context, cfg engine.LoadConfig) error

// LoadResult reports which source ultimately served the engine assets.
type LoadResult struct {
	Source string
	Config engine.LoadConfig
}

// Resolver builds candidate asset URLs across base locations and drives the
// validate-and-load retry loop. Ordering encodes preference: local bundle
// first, then mirrors in priority order.
type Resolver struct {
	localDir string
	mirrors  []string
	log      hclog.Logger

	client      httpDoer
	stat        func(string) (os.FileInfo, error)
	sleep       func(time.Duration)
	backoffUnit time.Duration
}

// httpDoer abstracts the HTTP client for testability.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// New creates a resolver over the configured base locations. Empty locations
// are skipped.
func New(settings domain.Settings, log hclog.Logger) *Resolver {
	mirrors := make([]string, 0, 2)
	for _, m := range []string{settings.PrimaryMirror, settings.BackupMirror} {
		if strings.TrimSpace(m) != "" {
			mirrors = append(mirrors, strings.TrimRight(m, "/"))
		}
	}

	return &Resolver{
		localDir:    strings.TrimSpace(settings.LocalAssetDir),
		mirrors:     mirrors,
		log:         log,
		client:      &http.Client{Timeout: probeTimeout},
		stat:        os.Stat,
		sleep:       time.Sleep,
		backoffUnit: time.Second,
	}
}

// NewForTests creates a resolver with injectable probe and timing deps.
func NewForTests(
	settings domain.Settings,
	log hclog.Logger,
	client httpDoer,
	stat func(string) (os.FileInfo, error),
	sleep func(time.Duration),
	backoffUnit time.Duration,
) *Resolver {
	r := New(settings, log)
	if client != nil {
		r.client = client
	}
	if stat != nil {
		r.stat = stat
	}
	if sleep != nil {
		r.sleep = sleep
	}
	r.backoffUnit = backoffUnit
	return r
}

// Sources returns the base locations in preference order.
func (r *Resolver) Sources() []string {
	sources := make([]string, 0, 3)
	if r.localDir != "" {
		sources = append(sources, r.localDir)
	}
	return append(sources, r.mirrors...)
}

// Candidates returns candidate locations for one asset role, in preference
// order across all sources.
func (r *Resolver) Candidates(role domain.AssetRole) []string {
	suffix, ok := roleSuffixes[role]
	if !ok {
		return nil
	}

	sources := r.Sources()
	candidates := make([]string, 0, len(sources))
	for _, source := range sources {
		candidates = append(candidates, joinLocation(source, suffix))
	}
	return candidates
}

// AssetsFor builds the per-role asset set for one source.
func (r *Resolver) AssetsFor(source string) []Asset {
	assets := make([]Asset, 0, len(roleSuffixes))
	for _, role := range Roles() {
		assets = append(assets, Asset{
			Role:       role,
			Candidates: []string{joinLocation(source, roleSuffixes[role])},
		})
	}
	return assets
}

// Validate probes one candidate location. Remote module and core scripts get
// a lightweight HEAD probe; the binary payload gets a full GET because its
// cross-origin headers cannot otherwise be verified. Local paths are checked
// on the filesystem.
func (r *Resolver) Validate(ctx context.Context, location string, role domain.AssetRole) error {
	if !isRemote(location) {
		info, err := r.stat(location)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("asset location is a directory: %s", location)
		}
		return nil
	}

	method := http.MethodHead
	if role == domain.AssetRoleBinary {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, location, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe %s: status %d", location, resp.StatusCode)
	}
	return nil
}

// LoadWithRetry iterates candidate sources in preference order. For each
// source it attempts up to maxAttempts validate+load cycles with linearly
// increasing backoff before advancing to the next source. It fails only after
// every source has exhausted its attempts, carrying the last error seen.
func (r *Resolver) LoadWithRetry(ctx context.Context, maxAttempts int, load LoadFunc) (*LoadResult, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	sources := r.Sources()
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrAllSourcesUnreachable)
	}

	var lastErr error
	for _, source := range sources {
		cfg := engine.LoadConfig{
			CoreURL: joinLocation(source, roleSuffixes[domain.AssetRoleCore]),
			WASMURL: joinLocation(source, roleSuffixes[domain.AssetRoleBinary]),
		}

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			err := r.tryOnce(ctx, source, cfg, load)
			if err == nil {
				r.log.Info("engine assets loaded", "source", source, "attempt", attempt)
				return &LoadResult{Source: source, Config: cfg}, nil
			}

			lastErr = err
			r.log.Warn("asset source attempt failed",
				"source", source, "attempt", attempt, "max_attempts", maxAttempts, "error", err)

			if attempt < maxAttempts {
				r.sleep(time.Duration(attempt) * r.backoffUnit)
			}
		}
		r.log.Warn("asset source exhausted, falling back", "source", source)
	}

	return nil, fmt.Errorf("%w: last error: %v", ErrAllSourcesUnreachable, lastErr)
}

// tryOnce validates every asset role for one source, then loads the engine.
func (r *Resolver) tryOnce(ctx context.Context, source string, cfg engine.LoadConfig, load LoadFunc) error {
	for _, asset := range r.AssetsFor(source) {
		if err := r.Validate(ctx, asset.Candidates[0], asset.Role); err != nil {
			return fmt.Errorf("validate %s asset: %w", asset.Role, err)
		}
	}
	if err := load(ctx, cfg); err != nil {
		return fmt.Errorf("load engine: %w", err)
	}
	return nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// joinLocation appends a fixed relative suffix to a base location, keeping
// URL form for remote bases and native path form for local ones.
func joinLocation(base, suffix string) string {
	if isRemote(base) {
		return strings.TrimRight(base, "/") + suffix
	}
	return filepath.Join(base, filepath.FromSlash(strings.TrimPrefix(suffix, "/")))
}
