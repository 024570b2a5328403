package progress

import (
	"testing"
	"time"
)

// newTestNormalizer returns a normalizer with a fixed clock and no warm-up.
func newTestNormalizer(totalDuration float64) *Normalizer {
	n := NewForTests(0, func() time.Time { return time.Unix(1000, 0) })
	n.Begin(totalDuration)
	return n
}

// TestIngestMonotonic verifies accepted percents never decrease.
func TestIngestMonotonic(t *testing.T) {
	n := newTestNormalizer(100)

	marks := []string{"10", "20", "15", "30", "25", "60", "55", "90"}
	last := 0
	for _, mark := range marks {
		res := n.Ingest(-1, mark)
		if !res.Accepted {
			if res.Reason != ReasonRegression {
				t.Fatalf("mark %s rejected with reason %q, want %q", mark, res.Reason, ReasonRegression)
			}
			continue
		}
		if res.Percent < last {
			t.Fatalf("percent regressed: %d after %d", res.Percent, last)
		}
		last = res.Percent
	}

	if percent, _ := n.Last(); percent != 90 {
		t.Fatalf("final percent = %d, want 90", percent)
	}
}

// TestIngestExactDurationIsFull checks a marker at exactly D maps to 100.
func TestIngestExactDurationIsFull(t *testing.T) {
	n := newTestNormalizer(50)

	res := n.Ingest(-1, "50")
	if !res.Accepted {
		t.Fatalf("rejected: %s", res.Reason)
	}
	if res.Percent != 100 {
		t.Fatalf("percent = %d, want 100", res.Percent)
	}
}

// TestIngestImplausibleMarkerRejected checks the 1.2x duration slack bound.
func TestIngestImplausibleMarkerRejected(t *testing.T) {
	n := newTestNormalizer(50)

	if res := n.Ingest(-1, "30"); !res.Accepted {
		t.Fatalf("baseline sample rejected: %s", res.Reason)
	}

	res := n.Ingest(-1, "61")
	if res.Accepted {
		t.Fatal("expected rejection above 1.2x duration")
	}
	if res.Reason != ReasonImplausible {
		t.Fatalf("reason = %q, want %q", res.Reason, ReasonImplausible)
	}

	percent, seconds := n.Last()
	if percent != 60 || seconds != 30 {
		t.Fatalf("state mutated by rejected sample: %d%%, %.1fs", percent, seconds)
	}

	// Exactly at the slack bound is still acceptable.
	if res := n.Ingest(-1, "60"); !res.Accepted {
		t.Fatalf("sample at slack bound rejected: %s", res.Reason)
	}
}

// TestIngestMicrosecondInference checks unit inference for large raw values.
func TestIngestMicrosecondInference(t *testing.T) {
	n := newTestNormalizer(10)

	res := n.Ingest(-1, "5000000")
	if !res.Accepted {
		t.Fatalf("rejected: %s", res.Reason)
	}
	if res.Seconds != 5.0 {
		t.Fatalf("seconds = %v, want 5.0", res.Seconds)
	}
	if res.Percent != 50 {
		t.Fatalf("percent = %d, want 50", res.Percent)
	}
}

// TestIngestStructuredTimecode checks HH:MM:SS.fraction parsing.
func TestIngestStructuredTimecode(t *testing.T) {
	n := newTestNormalizer(6000)

	res := n.Ingest(-1, "01:23:45.5")
	if !res.Accepted {
		t.Fatalf("rejected: %s", res.Reason)
	}
	if res.Seconds != 5025.5 {
		t.Fatalf("seconds = %v, want 5025.5", res.Seconds)
	}
	if res.Percent != 84 {
		t.Fatalf("percent = %d, want 84", res.Percent)
	}
}

// TestIngestWarmupSuppression checks early samples are discarded.
func TestIngestWarmupSuppression(t *testing.T) {
	now := time.Unix(1000, 0)
	n := NewForTests(2*time.Second, func() time.Time { return now })
	n.Begin(100)

	res := n.Ingest(-1, "5")
	if res.Accepted || res.Reason != ReasonWarmup {
		t.Fatalf("sample inside warm-up: accepted=%v reason=%q", res.Accepted, res.Reason)
	}

	now = now.Add(3 * time.Second)
	if res := n.Ingest(-1, "5"); !res.Accepted {
		t.Fatalf("sample after warm-up rejected: %s", res.Reason)
	}
}

// TestIngestUnparseableMarker checks garbage markers are discarded.
func TestIngestUnparseableMarker(t *testing.T) {
	n := newTestNormalizer(100)

	for _, mark := range []string{"", "N/A", "abc", "1:2", "x:y:z"} {
		res := n.Ingest(-1, mark)
		if res.Accepted {
			t.Fatalf("mark %q unexpectedly accepted", mark)
		}
		if res.Reason != ReasonUnparseable {
			t.Fatalf("mark %q reason = %q, want %q", mark, res.Reason, ReasonUnparseable)
		}
	}
}

// TestIngestFallbackToRawPercent checks behavior with unknown duration.
func TestIngestFallbackToRawPercent(t *testing.T) {
	n := newTestNormalizer(0)

	res := n.Ingest(42, "3")
	if !res.Accepted {
		t.Fatalf("rejected: %s", res.Reason)
	}
	if res.Percent != 42 {
		t.Fatalf("percent = %d, want 42", res.Percent)
	}

	res = n.Ingest(-1, "4")
	if res.Accepted || res.Reason != ReasonNoBaseline {
		t.Fatalf("sample without any baseline: accepted=%v reason=%q", res.Accepted, res.Reason)
	}

	res = n.Ingest(150, "5")
	if !res.Accepted || res.Percent != 100 {
		t.Fatalf("raw percent not clamped: accepted=%v percent=%d", res.Accepted, res.Percent)
	}
}

// TestSetDurationKeepsFirstValue checks duration is set once per job.
func TestSetDurationKeepsFirstValue(t *testing.T) {
	n := newTestNormalizer(0)
	n.SetDuration(40)
	n.SetDuration(90)

	res := n.Ingest(-1, "20")
	if !res.Accepted {
		t.Fatalf("rejected: %s", res.Reason)
	}
	if res.Percent != 50 {
		t.Fatalf("percent = %d, want 50 (duration 40 kept)", res.Percent)
	}

	n.Begin(0)
	n.SetDuration(90)
	res = n.Ingest(-1, "45")
	if !res.Accepted || res.Percent != 50 {
		t.Fatalf("after Begin, duration not resettable: accepted=%v percent=%d", res.Accepted, res.Percent)
	}
}

// TestParseTimeMarkForms covers accepted marker shapes.
func TestParseTimeMarkForms(t *testing.T) {
	cases := []struct {
		mark string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{"00:00:05.32", 5.32, true},
		{"00:01:00", 60, true},
		{"2500000", 2.5, true},
		{"  7  ", 7, true},
		{"", 0, false},
		{"N/A", 0, false},
		{"1:2:3:4", 0, false},
		{"aa:bb:cc", 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseTimeMark(tc.mark)
		if ok != tc.ok {
			t.Fatalf("ParseTimeMark(%q) ok = %v, want %v", tc.mark, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseTimeMark(%q) = %v, want %v", tc.mark, got, tc.want)
		}
	}
}
