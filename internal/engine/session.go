package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"vidforge/internal/domain"
	"vidforge/internal/progress"
)

// Named artifacts inside the engine's internal file namespace. Shared across
// all jobs run against one session; reset clears them between jobs.
const (
	inputFileName       = "input.webm"
	outputFileName      = "output.mp4"
	backgroundFileName  = "background.png"
	videoFileName       = "composite_input.mp4"
	compositeOutputName = "composite_output.mp4"
)

// ErrSessionClosed is returned when sending a command to a closed session.
var ErrSessionClosed = errors.New("session closed")

var (
	durationPattern = regexp.MustCompile(`Duration:\s*(\d+:\d+:\d+(?:\.\d+)?)`)
	timeMarkPattern = regexp.MustCompile(`\btime=(\S+)`)
)

// Session hosts one Engine instance on its own goroutine and speaks the
// worker message protocol: commands in, events out. Events for a single job
// are emitted in the order the engine produced them.
type Session struct {
	eng    Engine
	log    hclog.Logger
	norm   *progress.Normalizer
	normMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	commands  chan Command
	events    chan Event
	cancelled atomic.Bool

	mu     sync.Mutex
	state  domain.SessionState
	closed bool
}

// NewSession creates an unstarted session around the given engine.
func NewSession(eng Engine, log hclog.Logger, warmup time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		eng:      eng,
		log:      log,
		norm:     progress.New(warmup),
		ctx:      ctx,
		cancel:   cancel,
		commands: make(chan Command, 8),
		events:   make(chan Event, 128),
		state:    domain.SessionStateUnloaded,
	}
	eng.Subscribe(s)
	return s
}

// Start launches the session's command loop.
func (s *Session) Start() {
	go s.loop()
}

// Events returns the outbound event stream. The channel is closed when the
// session shuts down.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Send enqueues one command for the session loop.
func (s *Session) Send(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.commands <- cmd
	return nil
}

// RequestCancel sets the advisory cancellation flag. In-flight native
// execution continues; the flag only suppresses the completion event.
func (s *Session) RequestCancel() {
	s.cancelled.Store(true)
}

// State returns the current engine load state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close forces session teardown: the execution context is cancelled and the
// command channel drained. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.commands)
}

// loop processes commands serially until the command channel closes.
func (s *Session) loop() {
	defer close(s.events)
	for cmd := range s.commands {
		switch cmd.Type {
		case CommandInit:
			s.handleInit(cmd)
		case CommandConvert:
			s.runConvert(cmd)
		case CommandComposite:
			s.runComposite(cmd)
		case CommandCancel:
			s.cancelled.Store(true)
		case CommandReset:
			s.handleReset()
		default:
			s.log.Warn("unknown command", "type", cmd.Type)
		}
	}
}

func (s *Session) handleInit(cmd Command) {
	s.setState(domain.SessionStateLoading)
	if err := s.eng.Load(s.ctx, cmd.Load); err != nil {
		s.setState(domain.SessionStateUnloaded)
		s.emit(Event{Type: EventInitialized, Success: false, Message: err.Error()})
		return
	}
	s.setState(domain.SessionStateReady)
	s.emit(Event{Type: EventInitialized, Success: true})
}

func (s *Session) handleReset() {
	s.cancelled.Store(false)
	for _, name := range []string{
		inputFileName, outputFileName,
		backgroundFileName, videoFileName, compositeOutputName,
	} {
		if err := s.eng.DeleteFile(name); err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, os.ErrNotExist) {
			s.log.Debug("reset: delete artifact", "name", name, "error", err)
		}
	}
	s.emit(Event{Type: EventResetComplete})
}

func (s *Session) runConvert(cmd Command) {
	s.beginJob(0)

	if err := s.eng.WriteFile(inputFileName, cmd.Buffer); err != nil {
		s.emit(Event{Type: EventError, Message: fmt.Sprintf("write input: %v", err)})
		return
	}

	args := buildConvertArgs(cmd.Params, cmd.AutoTrim)
	if err := s.eng.Exec(s.ctx, args); err != nil {
		if s.cancelled.Load() {
			s.emit(Event{Type: EventError, Message: "job cancelled"})
			return
		}
		s.emit(Event{Type: EventError, Message: fmt.Sprintf("engine exec: %v", err)})
		return
	}
	if s.cancelled.Load() {
		s.emit(Event{Type: EventError, Message: "job cancelled"})
		return
	}

	out, err := s.eng.ReadFile(outputFileName)
	if err != nil {
		s.emit(Event{Type: EventError, Message: fmt.Sprintf("read output: %v", err)})
		return
	}
	s.emit(Event{Type: EventCompleted, Buffer: out})
}

func (s *Session) runComposite(cmd Command) {
	s.beginJob(0)

	if err := s.eng.WriteFile(backgroundFileName, cmd.Composite.Background); err != nil {
		s.emit(Event{Type: EventError, Message: fmt.Sprintf("write background: %v", err)})
		return
	}
	if err := s.eng.WriteFile(videoFileName, cmd.Buffer); err != nil {
		s.emit(Event{Type: EventError, Message: fmt.Sprintf("write video: %v", err)})
		return
	}

	args := buildCompositeArgs(cmd.Composite)
	if err := s.eng.Exec(s.ctx, args); err != nil {
		if s.cancelled.Load() {
			s.emit(Event{Type: EventError, Message: "job cancelled"})
			return
		}
		s.emit(Event{Type: EventError, Message: fmt.Sprintf("engine exec: %v", err)})
		return
	}
	if s.cancelled.Load() {
		s.emit(Event{Type: EventError, Message: "job cancelled"})
		return
	}

	out, err := s.eng.ReadFile(compositeOutputName)
	if err != nil {
		s.emit(Event{Type: EventError, Message: fmt.Sprintf("read output: %v", err)})
		return
	}
	s.emit(Event{Type: EventCompositeComplete, Buffer: out})
}

// beginJob resets the normalizer for a fresh job.
func (s *Session) beginJob(totalDuration float64) {
	s.normMu.Lock()
	s.norm.Begin(totalDuration)
	s.normMu.Unlock()
}

// Log implements Sink. Free-text engine lines are forwarded verbatim and
// additionally mined for duration and elapsed-time markers, which feed the
// same normalizer as structured progress events.
func (s *Session) Log(message string) {
	s.emitLossy(Event{Type: EventLog, Message: message})

	if m := durationPattern.FindStringSubmatch(message); m != nil {
		if seconds, ok := progress.ParseTimeMark(m[1]); ok {
			s.normMu.Lock()
			s.norm.SetDuration(seconds)
			s.normMu.Unlock()
		}
	}

	if m := timeMarkPattern.FindStringSubmatch(message); m != nil {
		s.ingest(-1, m[1])
	}
}

// Progress implements Sink for structured engine progress events.
func (s *Session) Progress(fraction float64, timeMark string) {
	s.ingest(fraction*100, timeMark)
}

func (s *Session) ingest(rawPercent float64, timeMark string) {
	s.normMu.Lock()
	sample := s.norm.Ingest(rawPercent, timeMark)
	s.normMu.Unlock()

	if !sample.Accepted {
		s.log.Trace("progress sample rejected",
			"reason", sample.Reason, "mark", timeMark, "raw", strconv.FormatFloat(rawPercent, 'f', -1, 64))
		return
	}
	s.emitLossy(Event{Type: EventProgress, Percent: sample.Percent, Seconds: sample.Seconds})
}

// emit delivers an event, blocking until the consumer drains it.
func (s *Session) emit(ev Event) {
	s.events <- ev
}

// emitLossy delivers log/progress chatter; drops when the consumer lags.
func (s *Session) emitLossy(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Trace("event dropped", "type", ev.Type)
	}
}

func (s *Session) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
