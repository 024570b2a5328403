package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vidforge/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the single allowed active job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager with no active job.
func NewManager() *Manager {
	return &Manager{}
}

// Start registers a new job in queued state.
func (m *Manager) Start(jobID string, kind domain.JobKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:        jobID,
		Kind:      kind,
		Status:    domain.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// Transition validates and applies state transitions for the current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	if isTerminal(status) {
		m.current.CompletedAt = time.Now().UTC()
	}
	return nil
}

// SetProgress records accumulated normalized progress for the current job.
// Regressing values are ignored; progress never visibly decreases.
func (m *Manager) SetProgress(percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if percent > m.current.Progress {
		m.current.Progress = percent
	}
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata entirely.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{}
}

// IsActive reports whether a job is currently queued, running, or cancelling.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// Cancel moves an active job to cancelling state.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isActive(m.current.Status) {
		return ErrNoRunningJob
	}
	m.current.Status = domain.JobStatusCancelling
	return nil
}

// isActive checks if a status represents a live job.
func isActive(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusQueued, domain.JobStatusRunning, domain.JobStatusCancelling:
		return true
	default:
		return false
	}
}

// isTerminal checks if a status ends the job lifecycle.
func isTerminal(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusQueued:
		return to == domain.JobStatusRunning || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusRunning:
		return to == domain.JobStatusCancelling || isTerminal(to)
	case domain.JobStatusCancelling:
		return to == domain.JobStatusCancelled || to == domain.JobStatusFailed
	default:
		return false
	}
}
