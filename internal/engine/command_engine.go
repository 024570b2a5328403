package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const assetFetchTimeout = 10 * time.Minute

// CommandEngine runs the resolved engine core under an external WASM runtime
// process. File operations address a private workspace directory that the
// runtime is granted access to.
type CommandEngine struct {
	runner   string
	cacheDir string
	workDir  string
	client   *http.Client

	mu       sync.Mutex
	sink     Sink
	wasmPath string
}

// NewCommandEngine creates an engine backed by the given runtime binary.
// Downloaded assets are kept under cacheDir across sessions.
func NewCommandEngine(runner, cacheDir, workDir string) *CommandEngine {
	return &CommandEngine{
		runner:   runner,
		cacheDir: cacheDir,
		workDir:  workDir,
		client:   &http.Client{Timeout: assetFetchTimeout},
	}
}

// Subscribe registers the event sink. The last registered sink wins.
func (e *CommandEngine) Subscribe(sink Sink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// Load ensures the workspace exists and materializes the core binary from the
// resolved location, downloading it into the cache when remote.
func (e *CommandEngine) Load(ctx context.Context, cfg LoadConfig) error {
	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	wasmPath, err := e.materialize(ctx, cfg.WASMURL)
	if err != nil {
		return fmt.Errorf("fetch engine binary: %w", err)
	}
	if _, err := e.materialize(ctx, cfg.CoreURL); err != nil {
		return fmt.Errorf("fetch engine core: %w", err)
	}

	e.mu.Lock()
	e.wasmPath = wasmPath
	e.mu.Unlock()
	return nil
}

// WriteFile places a named file into the engine workspace.
func (e *CommandEngine) WriteFile(name string, data []byte) error {
	return os.WriteFile(filepath.Join(e.workDir, filepath.Base(name)), data, 0o644)
}

// ReadFile reads a named file from the engine workspace.
func (e *CommandEngine) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(e.workDir, filepath.Base(name)))
}

// DeleteFile removes a named file from the engine workspace.
func (e *CommandEngine) DeleteFile(name string) error {
	return os.Remove(filepath.Join(e.workDir, filepath.Base(name)))
}

// Exec invokes the runtime with the given argv and streams its diagnostic
// output line by line to the subscribed sink.
func (e *CommandEngine) Exec(ctx context.Context, args []string) error {
	e.mu.Lock()
	wasmPath := e.wasmPath
	sink := e.sink
	e.mu.Unlock()

	if wasmPath == "" {
		return errors.New("engine not loaded")
	}

	runnerArgs := append([]string{"run", "--dir", e.workDir, wasmPath, "--"}, args...)
	cmd := exec.CommandContext(ctx, e.runner, runnerArgs...)
	cmd.Dir = e.workDir

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if sink != nil {
			sink.Log(scanner.Text())
		}
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("engine exited with code %d", exitErr.ExitCode())
		}
		return err
	}
	return nil
}

// materialize resolves one asset location to a local path. Remote URLs are
// downloaded into the cache keyed by file name; local paths are used in place.
func (e *CommandEngine) materialize(ctx context.Context, location string) (string, error) {
	if location == "" {
		return "", errors.New("empty asset location")
	}

	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		if _, err := os.Stat(location); err != nil {
			return "", err
		}
		return location, nil
	}

	if err := os.MkdirAll(e.cacheDir, 0o755); err != nil {
		return "", err
	}

	target := filepath.Join(e.cacheDir, filepath.Base(location))
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", location, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(e.cacheDir, "asset-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return target, nil
}
