package renderer

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// Stops rendering once a wall clock or iteration budget is used up. The
// budget is checked at the start of a frame.
type Timer struct {
	opts TimerOptions

	start   time.Time
	elapsed float64
	stopped bool

	// Elapsed seconds at every checked frame.
	times []float64

	now func() time.Time
}

func NewTimer(opts TimerOptions) *Timer {
	return &Timer{
		opts: opts,
		now:  time.Now,
	}
}

func (t *Timer) Options() TimerOptions {
	return t.opts
}

// Replace the budget. Call Reset to restart the clock.
func (t *Timer) SetOptions(opts TimerOptions) {
	t.opts = opts
}

// Restart the clock and drop recorded times.
func (t *Timer) Reset() {
	t.start = t.now()
	t.elapsed = 0
	t.stopped = false
	t.times = t.times[:0]
}

// Check the budget for a frame about to render after iteration frames. If
// reset is set the clock restarts instead. Returns true if the frame should
// be skipped.
func (t *Timer) Check(reset bool, iteration uint32) bool {
	if !t.opts.Enabled {
		return false
	}
	if reset {
		t.Reset()
		return false
	}
	if t.stopped {
		return true
	}

	if t.opts.Seconds != 0 {
		t.elapsed = t.now().Sub(t.start).Seconds()
		if t.opts.Seconds <= t.elapsed {
			t.stopped = true
		}
	}
	if t.opts.MaxIterations != 0 && t.opts.MaxIterations <= iteration {
		t.stopped = true
	}

	if t.opts.RecordTimes {
		t.times = append(t.times, t.elapsed)
	}
	return t.stopped
}

func (t *Timer) Stopped() bool {
	return t.opts.Enabled && t.stopped
}

// Seconds since the last reset as of the last check.
func (t *Timer) Elapsed() float64 {
	return t.elapsed
}

func (t *Timer) Times() []float64 {
	return t.times
}

// Write the recorded times as a single column with a <name>_Times header.
// Nothing is written if no times were recorded.
func (t *Timer) WriteTimes(w io.Writer, name string) error {
	if len(t.times) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s_Times\n", name)
	for _, v := range t.times {
		fmt.Fprintf(bw, "%.16f\n", v)
	}
	return bw.Flush()
}
