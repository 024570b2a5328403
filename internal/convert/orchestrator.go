// Package convert is the boundary-facing entry point: it selects encode
// parameters, drives the worker controller, relays refined progress and log
// events to caller callbacks, and composes the result.
package convert

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"vidforge/internal/domain"
	"vidforge/internal/jobs"
	"vidforge/internal/worker"
)

// ErrOutputInvalid is returned when the produced artifact is missing or
// implausibly small. Never retried automatically: it indicates a parameter
// or input problem.
var ErrOutputInvalid = errors.New("output invalid")

// minOutputBytes is the plausibility floor for produced artifacts.
const minOutputBytes = 1024

// Request describes one conversion or composition to run.
type Request struct {
	Kind      domain.JobKind
	Input     []byte
	Params    *domain.EncodeParams
	Composite *domain.CompositeOptions

	// ExperimentalAutoTrim enables leading-frame trimming on transcodes.
	// Unvalidated behavior; defaults off.
	ExperimentalAutoTrim bool
}

// Orchestrator serializes job submissions against one worker session and
// fans events out to caller-registered callbacks.
type Orchestrator struct {
	controller *worker.Controller
	manager    *jobs.Manager
	events     *jobs.EventBus
	log        hclog.Logger
	buffers    bufferCache

	runMu sync.Mutex

	cbMu       sync.Mutex
	onLog      func(message string)
	onProgress func(percent int, seconds float64)
}

// New creates an orchestrator over the given controller.
func New(controller *worker.Controller, log hclog.Logger) *Orchestrator {
	return &Orchestrator{
		controller: controller,
		manager:    jobs.NewManager(),
		events:     jobs.NewEventBus(1000),
		log:        log,
	}
}

// Initialize brings the worker session up. Fails with an error satisfying
// errors.Is(err, worker.ErrInitializationFailed) on resource-resolution
// exhaustion.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	return o.controller.Initialize(ctx)
}

// OnLog registers the callback invoked for each engine log line.
func (o *Orchestrator) OnLog(fn func(message string)) {
	o.cbMu.Lock()
	o.onLog = fn
	o.cbMu.Unlock()
}

// OnProgress registers the callback invoked for each accepted progress
// sample. Reported percentages never decrease within one job.
func (o *Orchestrator) OnProgress(fn func(percent int, seconds float64)) {
	o.cbMu.Lock()
	o.onProgress = fn
	o.cbMu.Unlock()
}

// Events returns events with sequence strictly greater than sinceSeq, for
// polling observers.
func (o *Orchestrator) Events(sinceSeq int64) []jobs.Event {
	return o.events.Since(sinceSeq)
}

// CurrentJob returns a snapshot of the most recent job.
func (o *Orchestrator) CurrentJob() domain.Job {
	return o.manager.Current()
}

// Run executes one job and returns the produced artifact. Submissions are
// serialized: a Run issued while a previous job is still pending waits for
// that job to settle before dispatching.
func (o *Orchestrator) Run(ctx context.Context, req Request) ([]byte, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if len(req.Input) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrOutputInvalid)
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.JobKindTranscode
	}

	var params domain.EncodeParams
	if req.Params != nil {
		params = *req.Params
	} else {
		params = ParamsForSize(len(req.Input))
	}

	var composite *domain.CompositeOptions
	if kind == domain.JobKindComposite {
		if req.Composite == nil {
			return nil, fmt.Errorf("composite job requires composite options")
		}
		normalized, err := NormalizeGeometry(*req.Composite)
		if err != nil {
			return nil, err
		}
		composite = &normalized
	}

	// Buffers cross the worker boundary as copies; the caller keeps
	// ownership of its input slice. A cancelled job's session may still be
	// reading the copy after Run returns, so it only re-enters the pool
	// once the session has settled the job.
	input := o.buffers.get(len(req.Input))
	copy(input, req.Input)
	pooled := true
	defer func() {
		if pooled {
			o.buffers.put(input)
		}
	}()

	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Input:     input,
		Params:    params,
		Composite: composite,
		AutoTrim:  req.ExperimentalAutoTrim,
	}

	if err := o.manager.Start(job.ID, kind); err != nil {
		return nil, fmt.Errorf("%w: %v", worker.ErrBusy, err)
	}
	o.publishStatus(job.ID, domain.JobStatusQueued, "Job queued")

	_ = o.manager.Transition(domain.JobStatusRunning)
	o.publishStatus(job.ID, domain.JobStatusRunning, "Job started")

	out, err := o.controller.Submit(ctx, job, &jobSink{orch: o, jobID: job.ID})
	if err != nil {
		if errors.Is(err, worker.ErrCancelled) {
			pooled = false
		}
		return nil, o.settleFailure(job.ID, err)
	}

	if len(out) < minOutputBytes {
		err := fmt.Errorf("%w: artifact is %d bytes, floor is %d", ErrOutputInvalid, len(out), minOutputBytes)
		return nil, o.settleFailure(job.ID, err)
	}

	if err := o.manager.Transition(domain.JobStatusCompleted); err != nil {
		// A cancellation that raced the final event is authoritative for
		// the caller; the late result is discarded.
		if o.manager.Current().Status == domain.JobStatusCancelling {
			return nil, o.settleFailure(job.ID, worker.ErrCancelled)
		}
	}
	o.manager.SetProgress(100)
	o.events.Publish(jobs.Event{
		JobID:      job.ID,
		Type:       jobs.EventTypeResult,
		Status:     domain.JobStatusCompleted,
		Message:    "Artifact produced",
		OutputSize: len(out),
	})
	o.log.Info("job settled", "job", job.ID, "status", domain.JobStatusCompleted)
	return out, nil
}

// Cancel requests cancellation of the in-flight job. Always succeeds locally;
// cancelling while idle is a valid no-op.
func (o *Orchestrator) Cancel() {
	if err := o.controller.Cancel(); err != nil {
		if !errors.Is(err, worker.ErrNoRunningJob) {
			o.log.Warn("cancel request failed", "error", err)
		}
		return
	}
	// The run goroutine may have settled the job already; a cancelling
	// event must not trail a terminal one.
	if err := o.manager.Cancel(); err != nil {
		return
	}
	if job := o.manager.Current(); job.ID != "" {
		o.publishStatus(job.ID, domain.JobStatusCancelling, "Cancellation requested")
	}
}

// Destroy cancels any in-flight job, tears down the worker session, and
// releases the buffer cache. A later Initialize yields a fresh session.
func (o *Orchestrator) Destroy() {
	o.Cancel()
	o.controller.Terminate()
	o.buffers.clear()
	o.log.Info("orchestrator destroyed")
}

// settleFailure maps a submission error onto the job state machine and the
// event stream.
func (o *Orchestrator) settleFailure(jobID string, err error) error {
	status := domain.JobStatusFailed
	if errors.Is(err, worker.ErrCancelled) {
		status = domain.JobStatusCancelled
	}

	_ = o.manager.Transition(status)

	o.publishStatus(jobID, status, "Job "+string(status))
	o.events.Publish(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Status:  status,
		Message: err.Error(),
	})
	o.log.Warn("job settled", "job", jobID, "status", status, "error", err)
	return err
}

// publishStatus emits a human-readable lifecycle transition event.
func (o *Orchestrator) publishStatus(jobID string, status domain.JobStatus, message string) {
	o.events.Publish(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
	o.emitLog(fmt.Sprintf("[%s] %s", status, message))
}

func (o *Orchestrator) emitLog(message string) {
	o.cbMu.Lock()
	fn := o.onLog
	o.cbMu.Unlock()
	if fn != nil {
		fn(message)
	}
}

func (o *Orchestrator) emitProgress(percent int, seconds float64) {
	o.cbMu.Lock()
	fn := o.onProgress
	o.cbMu.Unlock()
	if fn != nil {
		fn(percent, seconds)
	}
}

// jobSink relays controller events for the active job to callbacks and the
// event stream.
type jobSink struct {
	orch  *Orchestrator
	jobID string
}

func (s *jobSink) Log(message string) {
	s.orch.events.Publish(jobs.Event{
		JobID:   s.jobID,
		Type:    jobs.EventTypeLog,
		Message: message,
	})
	s.orch.emitLog(message)
}

func (s *jobSink) Progress(percent int, seconds float64) {
	s.orch.manager.SetProgress(percent)
	s.orch.events.Publish(jobs.Event{
		JobID:   s.jobID,
		Type:    jobs.EventTypeProgress,
		Percent: percent,
		Seconds: seconds,
	})
	s.orch.emitProgress(percent, seconds)
}
