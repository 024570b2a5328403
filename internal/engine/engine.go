// Package engine defines the boundary to the external codec runtime and the
// session goroutine that drives one engine instance off the caller's context.
package engine

import "context"

// LoadConfig carries the resolved asset locations the engine loads from.
type LoadConfig struct {
	CoreURL string
	WASMURL string
}

// Sink receives raw events emitted by the engine during execution.
type Sink interface {
	// Log delivers one free-text engine log line.
	Log(message string)
	// Progress delivers one raw progress event. fraction is 0..1 and
	// timeMark is the engine's elapsed-time marker in whatever unit the
	// engine chose to emit.
	Progress(fraction float64, timeMark string)
}

// Engine is the opaque external codec runtime. Implementations perform the
// actual encoding; callers only drive, observe, and abort it.
type Engine interface {
	Load(ctx context.Context, cfg LoadConfig) error
	WriteFile(name string, data []byte) error
	Exec(ctx context.Context, args []string) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	Subscribe(sink Sink)
}
