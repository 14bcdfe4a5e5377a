// Package timer detects scheduling drift: each pass of the control loop
// asks whether the elapsed time since the previous pass matches the
// expected tick interval. The monitor only measures; what counts as "too
// much drift" is the caller's policy.
package timer

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Sample is one immutable monotonic clock reading. The zero Sample means
// "no prior baseline"; the monitor holds no history beyond the single
// previous sample its caller carries between passes.
type Sample struct {
	t time.Time
}

func (s Sample) IsZero() bool    { return s.t.IsZero() }
func (s Sample) Time() time.Time { return s.t }

// Monitor computes drift against a fixed expected interval.
type Monitor struct {
	expected time.Duration
	clk      clock.Clock
}

// DefaultInterval matches the runtime's periodic check cadence.
const DefaultInterval = 100 * time.Millisecond

// NewMonitor returns a monitor for the given expected interval. A zero or
// negative interval falls back to DefaultInterval; a nil clock uses the
// real one.
func NewMonitor(expected time.Duration, clk clock.Clock) *Monitor {
	if expected <= 0 {
		expected = DefaultInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{expected: expected, clk: clk}
}

// Expected reports the configured tick interval.
func (m *Monitor) Expected() time.Duration { return m.expected }

// CheckPeriodic takes a fresh monotonic reading and returns it together
// with the signed drift relative to prev:
//
//	drift = (now - prev) - expected
//
// A zero prev (first call) returns drift 0 by convention. The computation
// performs no I/O and cannot fail; a platform that cannot supply a
// monotonic reading would have failed process startup long before here.
func (m *Monitor) CheckPeriodic(prev Sample) (Sample, time.Duration) {
	now := Sample{t: m.clk.Now()}
	if prev.IsZero() {
		return now, 0
	}
	return now, now.t.Sub(prev.t) - m.expected
}
