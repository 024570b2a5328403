// Package worker owns the lifecycle of one off-thread engine session:
// initialization, single in-flight job enforcement, cancellation signaling,
// and state reset between jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"vidforge/internal/domain"
	"vidforge/internal/engine"
	"vidforge/internal/resolve"
)

// State is the controller's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateRunning       State = "running"
	StateCancelling    State = "cancelling"
	StateTerminated    State = "terminated"
)

var (
	// ErrNotReady is returned when submitting before initialization.
	ErrNotReady = errors.New("controller not ready")
	// ErrBusy is returned when a job is already in flight.
	ErrBusy = errors.New("job already in flight")
	// ErrCancelled is returned for jobs aborted by caller request.
	ErrCancelled = errors.New("job cancelled")
	// ErrEngineFailed is returned when the engine reports an execution error.
	ErrEngineFailed = errors.New("engine execution failed")
	// ErrInitializationFailed is returned when the engine cannot be loaded.
	ErrInitializationFailed = errors.New("initialization failed")
	// ErrNoRunningJob is returned when cancel is requested while idle.
	ErrNoRunningJob = errors.New("no running job")
)

// EventSink receives refined progress and log events for the active job.
type EventSink interface {
	Log(message string)
	Progress(percent int, seconds float64)
}

// Controller drives one engine session. At most one job runs at a time; a
// second submission fails fast with ErrBusy.
type Controller struct {
	newEngine     func() engine.Engine
	resolver      *resolve.Resolver
	log           hclog.Logger
	warmup        time.Duration
	grace         time.Duration
	retryAttempts int

	mu        sync.Mutex
	state     State
	session   *engine.Session
	cancelCh  chan struct{}
	activeJob string
}

// New creates an uninitialized controller.
func New(newEngine func() engine.Engine, resolver *resolve.Resolver, settings domain.Settings, log hclog.Logger) *Controller {
	return &Controller{
		newEngine:     newEngine,
		resolver:      resolver,
		log:           log,
		warmup:        time.Duration(settings.WarmupSeconds) * time.Second,
		grace:         time.Duration(settings.GraceSeconds) * time.Second,
		retryAttempts: settings.RetryAttempts,
		state:         StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize resolves and loads engine assets and brings the session to
// ready. Idempotent no-op if already ready. Failure leaves the controller
// uninitialized; callers retry by invoking Initialize again.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateRunning, StateCancelling:
		c.mu.Unlock()
		return ErrBusy
	case StateInitializing:
		c.mu.Unlock()
		return fmt.Errorf("%w: initialization in progress", ErrNotReady)
	}
	c.state = StateInitializing
	c.mu.Unlock()

	c.log.Info("initializing worker session")
	session := engine.NewSession(c.newEngine(), c.log.Named("session"), c.warmup)
	session.Start()

	loader := func(ctx context.Context, cfg engine.LoadConfig) error {
		if err := session.Send(engine.Command{Type: engine.CommandInit, Load: cfg}); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-session.Events():
				if !ok {
					return engine.ErrSessionClosed
				}
				if ev.Type == engine.EventInitialized {
					if !ev.Success {
						return errors.New(ev.Message)
					}
					return nil
				}
			}
		}
	}

	result, err := c.resolver.LoadWithRetry(ctx, c.retryAttempts, loader)
	if err != nil {
		session.Close()
		drain(session)
		c.setState(StateUninitialized)
		c.log.Error("worker session initialization failed", "error", err)
		return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	c.mu.Lock()
	if c.state != StateInitializing {
		c.mu.Unlock()
		session.Close()
		drain(session)
		return fmt.Errorf("%w: controller terminated during initialization", ErrNotReady)
	}
	c.session = session
	c.state = StateReady
	c.mu.Unlock()
	c.log.Info("worker session ready", "source", result.Source)
	return nil
}

// Submit runs one job to completion. It blocks until the job reaches a
// terminal state or is cancelled, forwarding refined events to sink along
// the way. If the job's optional fast path fails, the same job is resubmitted
// once with the fast path disabled before failure is surfaced.
func (c *Controller) Submit(ctx context.Context, job *domain.Job, sink EventSink) ([]byte, error) {
	c.mu.Lock()
	switch c.state {
	case StateRunning, StateCancelling:
		c.mu.Unlock()
		return nil, ErrBusy
	case StateReady:
	default:
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	session := c.session
	cancelCh := make(chan struct{})
	c.cancelCh = cancelCh
	c.state = StateRunning
	c.activeJob = job.ID
	c.mu.Unlock()

	c.log.Info("job submitted", "job", job.ID, "kind", job.Kind)

	if err := c.resetSession(session, cancelCh); err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		c.finish(StateReady)
		return nil, err
	}

	if err := session.Send(commandForJob(job)); err != nil {
		c.finish(StateUninitialized)
		return nil, fmt.Errorf("%w: %v", ErrEngineFailed, err)
	}

	retried := false
	for {
		select {
		case <-cancelCh:
			go c.reap(session)
			return nil, ErrCancelled
		case ev, ok := <-session.Events():
			// A cancellation that raced the event wins: the caller has
			// moved on and late results are discarded.
			select {
			case <-cancelCh:
				go c.reap(session)
				return nil, ErrCancelled
			default:
			}

			if !ok {
				c.finish(StateUninitialized)
				return nil, fmt.Errorf("%w: session closed", ErrEngineFailed)
			}

			switch ev.Type {
			case engine.EventLog:
				sink.Log(ev.Message)
			case engine.EventProgress:
				sink.Progress(ev.Percent, ev.Seconds)
			case engine.EventResetComplete:
				// residue from a mid-job reset; nothing to forward
			case engine.EventCompleted, engine.EventCompositeComplete:
				c.log.Info("job completed", "job", job.ID, "output_bytes", len(ev.Buffer))
				c.finish(StateReady)
				return ev.Buffer, nil
			case engine.EventError:
				if !retried && disableFastPath(job) {
					retried = true
					c.log.Warn("job failed with fast path enabled, retrying without",
						"job", job.ID, "error", ev.Message)
					if c.resubmit(session, job) == nil {
						continue
					}
				}
				c.log.Error("job failed", "job", job.ID, "error", ev.Message)
				c.finish(StateReady)
				return nil, fmt.Errorf("%w: %s", ErrEngineFailed, ev.Message)
			}
		}
	}
}

// Cancel signals best-effort cancellation of the running job. The engine
// offers no mid-execution abort primitive, so the in-flight execution runs
// on; the caller's pending result rejects immediately and a forced session
// teardown is scheduled if the engine does not wind down within the grace
// period.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning || c.cancelCh == nil {
		return ErrNoRunningJob
	}

	c.log.Info("cancellation requested", "job", c.activeJob)
	c.state = StateCancelling
	c.session.RequestCancel()
	_ = c.session.Send(engine.Command{Type: engine.CommandCancel})
	close(c.cancelCh)
	c.cancelCh = nil
	return nil
}

// Terminate tears down the session. A running job's pending result rejects
// as cancelled.
func (c *Controller) Terminate() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	if c.cancelCh != nil {
		close(c.cancelCh)
		c.cancelCh = nil
	}
	c.state = StateTerminated
	c.activeJob = ""
	c.mu.Unlock()

	if session != nil {
		session.Close()
		drain(session)
	}
	c.log.Info("worker session terminated")
}

// resetSession clears the cancellation flag and residual engine artifacts
// before a new submission.
func (c *Controller) resetSession(session *engine.Session, cancelCh chan struct{}) error {
	if err := session.Send(engine.Command{Type: engine.CommandReset}); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineFailed, err)
	}

	timer := time.NewTimer(c.grace)
	defer timer.Stop()
	for {
		select {
		case <-cancelCh:
			go c.reap(session)
			return ErrCancelled
		case <-timer.C:
			return fmt.Errorf("%w: session reset timed out", ErrEngineFailed)
		case ev, ok := <-session.Events():
			if !ok {
				return fmt.Errorf("%w: session closed", ErrEngineFailed)
			}
			if ev.Type == engine.EventResetComplete {
				return nil
			}
		}
	}
}

// resubmit resets the session and dispatches the job command again.
func (c *Controller) resubmit(session *engine.Session, job *domain.Job) error {
	if err := session.Send(engine.Command{Type: engine.CommandReset}); err != nil {
		return err
	}
	return session.Send(commandForJob(job))
}

// reap consumes events from a cancelled job's session. If the engine winds
// down within the grace period the session returns to ready; otherwise the
// session is forcibly torn down and a fresh Initialize is required.
func (c *Controller) reap(session *engine.Session) {
	timer := time.NewTimer(c.grace)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			c.log.Warn("cancellation grace period elapsed, forcing session teardown")
			session.Close()
			drain(session)
			c.dropSession(session, StateUninitialized)
			return
		case ev, ok := <-session.Events():
			if !ok {
				c.dropSession(session, StateUninitialized)
				return
			}
			if ev.IsTerminal() {
				c.log.Debug("late event after cancellation discarded", "type", ev.Type)
				c.mu.Lock()
				if c.session == session {
					c.state = StateReady
					c.activeJob = ""
				}
				c.mu.Unlock()
				return
			}
		}
	}
}

// dropSession detaches a dead session, leaving the controller in newState.
func (c *Controller) dropSession(session *engine.Session, newState State) {
	c.mu.Lock()
	if c.session == session {
		c.session = nil
		c.state = newState
		c.activeJob = ""
	}
	c.mu.Unlock()
}

func (c *Controller) finish(state State) {
	c.mu.Lock()
	c.state = state
	c.activeJob = ""
	c.cancelCh = nil
	c.mu.Unlock()
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// disableFastPath clears the job's optional fast-path flags, reporting
// whether any were set.
func disableFastPath(job *domain.Job) bool {
	if !job.Params.FastStart && !job.AutoTrim {
		return false
	}
	job.Params.FastStart = false
	job.AutoTrim = false
	return true
}

// commandForJob maps a job onto its wire command.
func commandForJob(job *domain.Job) engine.Command {
	if job.Kind == domain.JobKindComposite {
		var comp domain.CompositeOptions
		if job.Composite != nil {
			comp = *job.Composite
		}
		return engine.Command{Type: engine.CommandComposite, Buffer: job.Input, Composite: comp}
	}
	return engine.Command{
		Type:     engine.CommandConvert,
		Buffer:   job.Input,
		Params:   job.Params,
		AutoTrim: job.AutoTrim,
	}
}

// drain releases a closed session's loop goroutine by consuming remaining
// events until the channel closes.
func drain(session *engine.Session) {
	go func() {
		for range session.Events() {
		}
	}()
}
