package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteEngineAssets creates the three engine runtime asset files under dir,
// making it a valid local bundle for the resolver.
func WriteEngineAssets(t *testing.T, dir string) {
	t.Helper()
	for _, name := range []string{
		"vidforge-engine.js",
		"vidforge-engine-core.js",
		"vidforge-engine-core.wasm",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("asset"), 0o644); err != nil {
			t.Fatalf("write asset %s: %v", name, err)
		}
	}
}
