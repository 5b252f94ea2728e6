package renderer

import (
	"bytes"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *fakeClock) Now() time.Time          { return c.now }

func newFakeTimer(opts TimerOptions) (*Timer, *fakeClock) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	timer := NewTimer(opts)
	timer.now = clock.Now
	return timer, clock
}

func TestTimerDisabled(t *testing.T) {
	timer, clock := newFakeTimer(TimerOptions{Seconds: 1, MaxIterations: 1})
	timer.Check(true, 0)
	clock.advance(time.Hour)
	if timer.Check(false, 100) || timer.Stopped() {
		t.Fatal("expected a disabled timer to never stop rendering")
	}
}

func TestTimerSecondsBudget(t *testing.T) {
	timer, clock := newFakeTimer(TimerOptions{Enabled: true, Seconds: 2, RecordTimes: true})

	if timer.Check(true, 0) {
		t.Fatal("expected reset to never stop rendering")
	}

	specs := []struct {
		step time.Duration
		exp  bool
	}{
		{500 * time.Millisecond, false},
		{time.Second, false},
		{500 * time.Millisecond, true},
		// Stays stopped until the next reset
		{0, true},
	}
	for specIndex, spec := range specs {
		clock.advance(spec.step)
		if got := timer.Check(false, uint32(specIndex)); got != spec.exp {
			t.Fatalf("[spec %d] expected Check to return %t; got %t", specIndex, spec.exp, got)
		}
	}

	// The final check returns before recording
	exp := []float64{0.5, 1.5, 2}
	got := timer.Times()
	if len(got) != len(exp) {
		t.Fatalf("expected %d recorded times; got %v", len(exp), got)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Fatalf("expected recorded time %d to be %f; got %f", i, exp[i], got[i])
		}
	}

	if timer.Check(true, 0) || timer.Stopped() || len(timer.Times()) != 0 {
		t.Fatal("expected reset to restart the timer")
	}
}

func TestTimerIterationBudget(t *testing.T) {
	timer, _ := newFakeTimer(TimerOptions{Enabled: true, MaxIterations: 3})
	timer.Check(true, 0)

	for it := uint32(0); it < 3; it++ {
		if timer.Check(false, it) {
			t.Fatalf("expected iteration %d to render", it)
		}
	}
	if !timer.Check(false, 3) {
		t.Fatal("expected the timer to stop after 3 iterations")
	}
}

func TestWriteTimes(t *testing.T) {
	timer, clock := newFakeTimer(TimerOptions{Enabled: true, Seconds: 100, RecordTimes: true})

	var buf bytes.Buffer
	if err := timer.WriteTimes(&buf, "RTPM"); err != nil || buf.Len() != 0 {
		t.Fatalf("expected nothing to be written without recorded times; got %q", buf.String())
	}

	timer.Check(true, 0)
	clock.advance(250 * time.Millisecond)
	timer.Check(false, 0)
	clock.advance(250 * time.Millisecond)
	timer.Check(false, 1)

	if err := timer.WriteTimes(&buf, "RTPM"); err != nil {
		t.Fatal(err)
	}
	exp := "RTPM_Times\n0.2500000000000000\n0.5000000000000000\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected output:\n%s\ngot:\n%s", exp, got)
	}
}
