package convert_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"vidforge/internal/convert"
	"vidforge/internal/domain"
	"vidforge/internal/engine"
	"vidforge/internal/jobs"
	"vidforge/internal/resolve"
	"vidforge/internal/testsupport"
	"vidforge/internal/worker"
)

func newTestOrchestrator(t *testing.T, fake *testsupport.FakeEngine) (*convert.Orchestrator, *worker.Controller) {
	t.Helper()
	dir := t.TempDir()
	testsupport.WriteEngineAssets(t, dir)

	settings := domain.Settings{
		LocalAssetDir: dir,
		RetryAttempts: 1,
		GraceSeconds:  2,
	}
	resolver := resolve.New(settings, hclog.NewNullLogger())
	ctrl := worker.New(func() engine.Engine { return fake }, resolver, settings, hclog.NewNullLogger())
	orch := convert.New(ctrl, hclog.NewNullLogger())
	t.Cleanup(orch.Destroy)

	if err := orch.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return orch, ctrl
}

func waitControllerState(t *testing.T, ctrl *worker.Controller, want worker.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("controller state = %q, want %q", ctrl.State(), want)
}

// TestOrchestratorRunSuccess verifies a transcode round trip settles the job
// as completed and publishes a result event.
func TestOrchestratorRunSuccess(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.Output = bytes.Repeat([]byte("v"), 4096)
	orch, _ := newTestOrchestrator(t, fake)

	out, err := orch.Run(context.Background(), convert.Request{Input: []byte("raw webm")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !bytes.Equal(out, fake.Output) {
		t.Fatalf("output = %d bytes, want %d", len(out), len(fake.Output))
	}

	job := orch.CurrentJob()
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("job status = %q, want %q", job.Status, domain.JobStatusCompleted)
	}
	if job.Progress != 100 {
		t.Fatalf("job progress = %d, want 100", job.Progress)
	}

	var sawResult bool
	for _, ev := range orch.Events(0) {
		if ev.Type == jobs.EventTypeResult && ev.OutputSize == len(fake.Output) {
			sawResult = true
		}
	}
	if !sawResult {
		t.Fatal("expected a result event in the stream")
	}
}

// TestOrchestratorRunEmptyInput verifies empty payloads are rejected upfront.
func TestOrchestratorRunEmptyInput(t *testing.T) {
	orch, _ := newTestOrchestrator(t, testsupport.NewFakeEngine())

	_, err := orch.Run(context.Background(), convert.Request{})
	if !errors.Is(err, convert.ErrOutputInvalid) {
		t.Fatalf("Run() error = %v, want ErrOutputInvalid", err)
	}
}

// TestOrchestratorRunSmallOutput verifies implausibly small artifacts fail
// the job without wedging later submissions.
func TestOrchestratorRunSmallOutput(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.Output = []byte("stub")
	orch, _ := newTestOrchestrator(t, fake)

	_, err := orch.Run(context.Background(), convert.Request{Input: []byte("raw webm")})
	if !errors.Is(err, convert.ErrOutputInvalid) {
		t.Fatalf("Run() error = %v, want ErrOutputInvalid", err)
	}
	if got := orch.CurrentJob().Status; got != domain.JobStatusFailed {
		t.Fatalf("job status = %q, want %q", got, domain.JobStatusFailed)
	}

	fake.Output = bytes.Repeat([]byte("v"), 2048)
	if _, err := orch.Run(context.Background(), convert.Request{Input: []byte("raw webm")}); err != nil {
		t.Fatalf("recovery Run() error = %v", err)
	}
}

// TestOrchestratorSerializesRuns verifies concurrent Runs queue instead of
// failing fast.
func TestOrchestratorSerializesRuns(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	release := make(chan struct{})
	fake.ExecHook = func(ctx context.Context, _ []string, eng *testsupport.FakeEngine) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return eng.WriteFile("output.mp4", bytes.Repeat([]byte("v"), 2048))
	}
	orch, ctrl := newTestOrchestrator(t, fake)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Run(context.Background(), convert.Request{Input: []byte("raw webm")})
			errs <- err
		}()
	}

	waitControllerState(t, ctrl, worker.StateRunning)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if fake.ExecCount() != 2 {
		t.Fatalf("exec count = %d, want 2", fake.ExecCount())
	}
}

// TestOrchestratorCancelIdle verifies cancelling with no job is a no-op.
func TestOrchestratorCancelIdle(t *testing.T) {
	orch, ctrl := newTestOrchestrator(t, testsupport.NewFakeEngine())

	orch.Cancel()
	if got := ctrl.State(); got != worker.StateReady {
		t.Fatalf("controller state = %q, want %q", got, worker.StateReady)
	}
}

// TestOrchestratorCancelDuringRun verifies cancellation settles the job as
// cancelled and rejects the pending result.
func TestOrchestratorCancelDuringRun(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.ExecDelay = 300 * time.Millisecond
	fake.Output = bytes.Repeat([]byte("v"), 2048)
	orch, ctrl := newTestOrchestrator(t, fake)

	done := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background(), convert.Request{Input: []byte("raw webm")})
		done <- err
	}()
	waitControllerState(t, ctrl, worker.StateRunning)

	orch.Cancel()
	if err := <-done; !errors.Is(err, worker.ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if got := orch.CurrentJob().Status; got != domain.JobStatusCancelled {
		t.Fatalf("job status = %q, want %q", got, domain.JobStatusCancelled)
	}
}

// TestOrchestratorComposite verifies geometry normalization reaches the
// engine argv and the composite artifact is returned.
func TestOrchestratorComposite(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.Output = bytes.Repeat([]byte("v"), 4096)
	orch, _ := newTestOrchestrator(t, fake)

	out, err := orch.Run(context.Background(), convert.Request{
		Kind:  domain.JobKindComposite,
		Input: []byte("raw mp4"),
		Composite: &domain.CompositeOptions{
			Background: []byte("png bytes"),
			Scale:      "480:640",
			Offset:     "20:30",
			OutputSize: "641:481",
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !bytes.Equal(out, fake.Output) {
		t.Fatalf("output = %d bytes, want %d", len(out), len(fake.Output))
	}

	args := fake.ExecCalls[len(fake.ExecCalls)-1]
	var sawSize bool
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-s" && args[i+1] == "642x482" {
			sawSize = true
		}
	}
	if !sawSize {
		t.Fatalf("argv missing -s 642x482: %v", args)
	}
}

type nopSink struct{}

func (nopSink) Log(string)            {}
func (nopSink) Progress(int, float64) {}

// TestOrchestratorCancelWithoutTrackedJob verifies no cancelling status is
// published when the job tracker has nothing active to move: a cancelling
// event must never trail a terminal one.
func TestOrchestratorCancelWithoutTrackedJob(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	release := make(chan struct{})
	fake.ExecHook = func(ctx context.Context, _ []string, eng *testsupport.FakeEngine) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return eng.WriteFile("output.mp4", bytes.Repeat([]byte("v"), 2048))
	}
	orch, ctrl := newTestOrchestrator(t, fake)

	// Occupy the controller without going through Run, so the tracker has
	// no active job when the cancel arrives.
	done := make(chan error, 1)
	go func() {
		job := &domain.Job{ID: "untracked", Kind: domain.JobKindTranscode, Input: []byte("in")}
		_, err := ctrl.Submit(context.Background(), job, nopSink{})
		done <- err
	}()
	waitControllerState(t, ctrl, worker.StateRunning)

	orch.Cancel()
	close(release)
	if err := <-done; !errors.Is(err, worker.ErrCancelled) {
		t.Fatalf("Submit() error = %v, want ErrCancelled", err)
	}
	if events := orch.Events(0); len(events) != 0 {
		t.Fatalf("unexpected events published: %+v", events)
	}
}

// TestOrchestratorCompositeMissingOptions verifies composite jobs require
// composite options.
func TestOrchestratorCompositeMissingOptions(t *testing.T) {
	orch, _ := newTestOrchestrator(t, testsupport.NewFakeEngine())

	_, err := orch.Run(context.Background(), convert.Request{
		Kind:  domain.JobKindComposite,
		Input: []byte("raw mp4"),
	})
	if err == nil {
		t.Fatal("expected error for missing composite options")
	}
}
