package diagnostics_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"

	"vidforge/internal/diagnostics"
	"vidforge/internal/domain"
	"vidforge/internal/resolve"
	"vidforge/internal/testsupport"
)

func newTestChecker(t *testing.T, dir string) *diagnostics.Checker {
	t.Helper()
	settings := domain.Settings{LocalAssetDir: dir}
	return diagnostics.NewChecker(resolve.New(settings, hclog.NewNullLogger()))
}

// TestCheckerAllAssetsPresent verifies a complete local bundle reports ready.
func TestCheckerAllAssetsPresent(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteEngineAssets(t, dir)

	report := newTestChecker(t, dir).Run(context.Background())

	if !report.Ready {
		t.Fatalf("report not ready: %+v", report.Assets)
	}
	if len(report.Assets) != 3 {
		t.Fatalf("asset checks = %d, want 3", len(report.Assets))
	}
	for _, check := range report.Assets {
		if !check.Reachable {
			t.Errorf("role %q unreachable", check.Role)
		}
		if check.Source == "" {
			t.Errorf("role %q missing source", check.Role)
		}
	}
}

// TestCheckerMissingBinary verifies a missing payload flags the report.
func TestCheckerMissingBinary(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteEngineAssets(t, dir)
	if err := os.Remove(filepath.Join(dir, "vidforge-engine-core.wasm")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	report := newTestChecker(t, dir).Run(context.Background())

	if report.Ready {
		t.Fatal("report ready despite missing binary asset")
	}
	for _, check := range report.Assets {
		if check.Role == domain.AssetRoleBinary {
			if check.Reachable {
				t.Fatal("binary check reachable")
			}
			if check.Detail == "" {
				t.Fatal("binary check missing failure detail")
			}
		} else if !check.Reachable {
			t.Errorf("role %q unreachable", check.Role)
		}
	}
}

// TestCheckerNoSources verifies an unconfigured resolver reports not ready.
func TestCheckerNoSources(t *testing.T) {
	report := newTestChecker(t, "").Run(context.Background())

	if report.Ready {
		t.Fatal("report ready with no sources configured")
	}
}
