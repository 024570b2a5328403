// Package testsupport provides shared fakes for exercising the worker stack
// without a real codec runtime.
package testsupport

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"vidforge/internal/engine"
)

// FakeEngine is a scriptable in-memory Engine implementation.
type FakeEngine struct {
	mu    sync.Mutex
	files map[string][]byte
	sink  engine.Sink

	// LoadErr fails Load when set. LoadCalls records every attempt.
	LoadErr   error
	LoadCalls []engine.LoadConfig

	// ExecHook, when set, fully controls Exec behavior.
	ExecHook func(ctx context.Context, args []string, eng *FakeEngine) error
	// ExecErr fails Exec when set and no hook is installed.
	ExecErr error
	// ExecDelay simulates execution time; cancelling ctx aborts the wait.
	ExecDelay time.Duration
	// Output is written to both output artifacts on successful Exec.
	Output []byte

	ExecCalls [][]string
}

// NewFakeEngine creates an empty fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{files: map[string][]byte{}}
}

// Subscribe implements engine.Engine.
func (e *FakeEngine) Subscribe(sink engine.Sink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// Load implements engine.Engine.
func (e *FakeEngine) Load(_ context.Context, cfg engine.LoadConfig) error {
	e.mu.Lock()
	e.LoadCalls = append(e.LoadCalls, cfg)
	err := e.LoadErr
	e.mu.Unlock()
	return err
}

// WriteFile implements engine.Engine.
func (e *FakeEngine) WriteFile(name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	e.files[name] = buf
	return nil
}

// ReadFile implements engine.Engine.
func (e *FakeEngine) ReadFile(name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[name]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, os.ErrNotExist)
	}
	return data, nil
}

// DeleteFile implements engine.Engine.
func (e *FakeEngine) DeleteFile(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.files[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, os.ErrNotExist)
	}
	delete(e.files, name)
	return nil
}

// Exec implements engine.Engine.
func (e *FakeEngine) Exec(ctx context.Context, args []string) error {
	e.mu.Lock()
	e.ExecCalls = append(e.ExecCalls, args)
	hook := e.ExecHook
	delay := e.ExecDelay
	execErr := e.ExecErr
	output := e.Output
	e.mu.Unlock()

	if hook != nil {
		return hook(ctx, args, e)
	}

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if execErr != nil {
		return execErr
	}

	_ = e.WriteFile("output.mp4", output)
	_ = e.WriteFile("composite_output.mp4", output)
	return nil
}

// EmitLog pushes a raw log line through the subscribed sink.
func (e *FakeEngine) EmitLog(message string) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		sink.Log(message)
	}
}

// EmitProgress pushes a raw progress event through the subscribed sink.
func (e *FakeEngine) EmitProgress(fraction float64, timeMark string) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		sink.Progress(fraction, timeMark)
	}
}

// Files returns a snapshot of the engine's file namespace.
func (e *FakeEngine) Files() map[string][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]byte, len(e.files))
	for name, data := range e.files {
		out[name] = data
	}
	return out
}

// ExecCount returns the number of Exec invocations so far.
func (e *FakeEngine) ExecCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ExecCalls)
}
