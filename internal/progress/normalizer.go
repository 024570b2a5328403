// Package progress converts raw, unit-inconsistent engine progress signals
// into a monotonically increasing percentage for a single job.
package progress

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Rejection reasons reported on discarded samples.
const (
	ReasonWarmup      = "warm-up"
	ReasonUnparseable = "unparseable"
	ReasonImplausible = "implausible"
	ReasonRegression  = "regression"
	ReasonNoBaseline  = "no-baseline"
)

// Values above this threshold are assumed to be microseconds. Engines emit
// mixed units depending on which event path produced the marker.
const microsecondThreshold = 1_000_000

// Duration slack tolerated for encoder look-ahead.
const durationSlack = 1.2

// Sample is the outcome of ingesting one raw progress event.
type Sample struct {
	Percent  int
	Seconds  float64
	Accepted bool
	Reason   string
}

// Normalizer tracks accepted progress for one job at a time.
type Normalizer struct {
	warmup        time.Duration
	totalDuration float64
	start         time.Time
	lastPercent   int
	lastSeconds   float64
	now           func() time.Time
}

// New creates a normalizer that suppresses samples during the warm-up window.
func New(warmup time.Duration) *Normalizer {
	return &Normalizer{
		warmup: warmup,
		now:    time.Now,
	}
}

// NewForTests creates a normalizer with an injectable clock.
func NewForTests(warmup time.Duration, now func() time.Time) *Normalizer {
	return &Normalizer{
		warmup: warmup,
		now:    now,
	}
}

// Begin resets per-job state. totalDuration is the expected media duration in
// seconds, or 0 when unknown.
func (n *Normalizer) Begin(totalDuration float64) {
	n.totalDuration = totalDuration
	n.start = n.now()
	n.lastPercent = 0
	n.lastSeconds = 0
}

// SetDuration records the media duration once it becomes known mid-job.
// A duration already set for this job is kept.
func (n *Normalizer) SetDuration(totalDuration float64) {
	if n.totalDuration > 0 || totalDuration <= 0 {
		return
	}
	n.totalDuration = totalDuration
}

// Last returns the most recently accepted percent and elapsed seconds.
func (n *Normalizer) Last() (int, float64) {
	return n.lastPercent, n.lastSeconds
}

// Ingest evaluates one raw sample. rawPercent is the engine's own fractional
// progress scaled to 0..100, or a negative value when absent. timeMark is the
// engine's elapsed-media-time marker, either numeric seconds or
// HH:MM:SS[.fraction]. Rejected samples leave accepted state unchanged.
func (n *Normalizer) Ingest(rawPercent float64, timeMark string) Sample {
	if n.now().Sub(n.start) < n.warmup {
		return Sample{Accepted: false, Reason: ReasonWarmup}
	}

	seconds, ok := ParseTimeMark(timeMark)
	if !ok {
		return Sample{Accepted: false, Reason: ReasonUnparseable}
	}

	if seconds <= 0 {
		return Sample{Accepted: false, Reason: ReasonImplausible}
	}
	if n.totalDuration > 0 && seconds > n.totalDuration*durationSlack {
		return Sample{Accepted: false, Reason: ReasonImplausible}
	}

	var percent int
	switch {
	case n.totalDuration > 0:
		percent = int(math.Round(seconds / n.totalDuration * 100))
		if percent > 100 {
			percent = 100
		}
	case rawPercent >= 0:
		percent = int(math.Round(math.Min(math.Max(rawPercent, 0), 100)))
	default:
		return Sample{Accepted: false, Reason: ReasonNoBaseline}
	}

	if percent < n.lastPercent {
		return Sample{Accepted: false, Reason: ReasonRegression}
	}

	n.lastPercent = percent
	n.lastSeconds = seconds
	return Sample{Percent: percent, Seconds: seconds, Accepted: true}
}

// ParseTimeMark parses a raw elapsed-time marker into seconds. It accepts a
// bare numeric value or a structured HH:MM:SS[.fraction] timecode. Numeric
// values above one million are treated as microseconds.
func ParseTimeMark(mark string) (float64, bool) {
	mark = strings.TrimSpace(mark)
	if mark == "" || mark == "N/A" {
		return 0, false
	}

	if value, err := strconv.ParseFloat(mark, 64); err == nil {
		if value > microsecondThreshold {
			value /= microsecondThreshold
		}
		return value, true
	}

	parts := strings.Split(mark, ":")
	if len(parts) != 3 {
		return 0, false
	}

	hours, err1 := strconv.ParseFloat(parts[0], 64)
	mins, err2 := strconv.ParseFloat(parts[1], 64)
	secs, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	if hours < 0 || mins < 0 || secs < 0 {
		return 0, false
	}

	return hours*3600 + mins*60 + secs, true
}
