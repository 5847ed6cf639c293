package meter

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sweeney/s0-meter/internal/source"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// testClock is a manual clock wired into the meter's now/sleep hooks.
// sleep records the requested durations instead of blocking.
type testClock struct {
	t     time.Time
	slept []time.Duration
}

func newTestMeter(t *testing.T, src source.Source, resolution int, debounce time.Duration) (*Meter, *testClock) {
	t.Helper()
	m, err := New(src, resolution, debounce)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := &testClock{t: t0}
	m.now = func() time.Time { return c.t }
	m.sleep = func(d time.Duration) { c.slept = append(c.slept, d) }
	return m, c
}

func TestNewValidation(t *testing.T) {
	src := source.NewFake(nil)
	cases := []struct {
		name       string
		src        source.Source
		resolution int
		debounce   time.Duration
		wantErr    bool
	}{
		{"defaults", src, DefaultResolution, DefaultDebounceDelay, false},
		{"minimum resolution", src, 1, 0, false},
		{"zero resolution", src, 0, 0, true},
		{"negative resolution", src, -5, 0, true},
		{"negative debounce", src, 1000, -time.Millisecond, true},
		{"nil source", nil, 1000, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.src, tc.resolution, tc.debounce)
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFirstReadEmitsSingleImpulse(t *testing.T) {
	src := source.NewFake([]source.Impulse{{}})
	m, _ := newTestMeter(t, src, 1000, 0)

	rds := make([]Reading, 2)
	n, err := m.Read(rds)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 1 {
		t.Fatalf("first Read returned %d readings, want 1", n)
	}
	if rds[0].Channel != ChannelImpulse {
		t.Errorf("channel = %q, want %q", rds[0].Channel, ChannelImpulse)
	}
	if rds[0].Value != 1 {
		t.Errorf("value = %v, want 1", rds[0].Value)
	}
	if !rds[0].Time.Equal(t0) {
		t.Errorf("time = %v, want %v", rds[0].Time, t0)
	}
}

func TestSteadyReadEmitsPowerThenImpulse(t *testing.T) {
	src := source.NewFake([]source.Impulse{{}, {}})
	m, c := newTestMeter(t, src, 1000, 0)
	src.WaitHook = func(i int) {
		if i == 1 {
			c.t = t0.Add(time.Second)
		}
	}

	rds := make([]Reading, 2)
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("bootstrap Read: %v", err)
	}

	n, err := m.Read(rds)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 {
		t.Fatalf("steady Read returned %d readings, want 2", n)
	}
	if rds[0].Channel != ChannelPower || rds[1].Channel != ChannelImpulse {
		t.Errorf("channels = %q, %q; want Power, Impulse", rds[0].Channel, rds[1].Channel)
	}
	if !rds[0].Time.Equal(rds[1].Time) {
		t.Errorf("timestamps differ: %v vs %v", rds[0].Time, rds[1].Time)
	}
	// 1 impulse per second at 1000 imp/kWh is 3.6 kW.
	if math.Abs(rds[0].Value-3600.0) > 1e-9 {
		t.Errorf("power = %v, want 3600", rds[0].Value)
	}
	if rds[1].Value != 1 {
		t.Errorf("impulse value = %v, want 1", rds[1].Value)
	}
}

func TestPowerComputation(t *testing.T) {
	cases := []struct {
		name       string
		resolution int
		interval   time.Duration
		want       float64
	}{
		{"one second at 1000", 1000, time.Second, 3600},
		{"two seconds at 1000", 1000, 2 * time.Second, 1800},
		{"half second at 2000", 2000, 500 * time.Millisecond, 3600},
		{"100 ms at 1000", 1000, 100 * time.Millisecond, 36000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := source.NewFake([]source.Impulse{{}, {}})
			m, c := newTestMeter(t, src, tc.resolution, 0)
			src.WaitHook = func(i int) {
				if i == 1 {
					c.t = t0.Add(tc.interval)
				}
			}

			rds := make([]Reading, 2)
			if _, err := m.Read(rds); err != nil {
				t.Fatalf("bootstrap Read: %v", err)
			}
			if _, err := m.Read(rds); err != nil {
				t.Fatalf("Read: %v", err)
			}
			if math.Abs(rds[0].Value-tc.want) > 1e-9 {
				t.Errorf("power = %v, want %v", rds[0].Value, tc.want)
			}
		})
	}
}

func TestSmallBufferIsNoOp(t *testing.T) {
	src := source.NewFake([]source.Impulse{{}})
	m, _ := newTestMeter(t, src, 1000, 0)

	n, err := m.Read(make([]Reading, 1))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 0 {
		t.Errorf("Read with capacity 1 returned %d readings, want 0", n)
	}
	if src.Waits != 0 {
		t.Errorf("source waited %d times for a no-op read", src.Waits)
	}

	// State unchanged: the next proper read is still the bootstrap one.
	rds := make([]Reading, 2)
	n, err = m.Read(rds)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 1 || rds[0].Channel != ChannelImpulse {
		t.Errorf("after no-op: n=%d channel=%q, want bootstrap Impulse", n, rds[0].Channel)
	}
}

func TestWaitFailureLeavesStateUntouched(t *testing.T) {
	simulated := errors.New("simulated wait failure")
	src := source.NewFake([]source.Impulse{
		{Err: simulated}, // bootstrap attempt fails
		{},               // bootstrap succeeds
		{Err: simulated}, // steady attempt fails
		{},               // steady succeeds
	})
	m, c := newTestMeter(t, src, 1000, 0)
	src.WaitHook = func(i int) {
		if i >= 2 {
			c.t = t0.Add(time.Second)
		}
	}

	rds := make([]Reading, 2)

	n, err := m.Read(rds)
	if !errors.Is(err, simulated) {
		t.Fatalf("expected wait failure, got n=%d err=%v", n, err)
	}
	if n != 0 {
		t.Errorf("failed read returned %d readings, want 0", n)
	}

	// Still in bootstrap.
	n, err = m.Read(rds)
	if err != nil || n != 1 {
		t.Fatalf("bootstrap retry: n=%d err=%v, want 1 reading", n, err)
	}

	n, err = m.Read(rds)
	if !errors.Is(err, simulated) {
		t.Fatalf("expected steady wait failure, got n=%d err=%v", n, err)
	}

	// lastImpulse was not moved by the failure: the interval still
	// counts from the bootstrap impulse at t0.
	n, err = m.Read(rds)
	if err != nil || n != 2 {
		t.Fatalf("steady retry: n=%d err=%v, want 2 readings", n, err)
	}
	if math.Abs(rds[0].Value-3600.0) > 1e-9 {
		t.Errorf("power = %v, want 3600 (interval from bootstrap impulse)", rds[0].Value)
	}
}

func TestDebounceDelaysEarlyImpulse(t *testing.T) {
	debounce := 30 * time.Millisecond
	src := source.NewFake([]source.Impulse{{}, {}})
	m, c := newTestMeter(t, src, 1000, debounce)
	src.WaitHook = func(i int) {
		if i == 1 {
			// Impulse observed right after the debounce window.
			c.t = t0.Add(40 * time.Millisecond)
		}
	}

	rds := make([]Reading, 2)
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("bootstrap Read: %v", err)
	}

	// A bounce arrives 10ms after the accepted impulse.
	c.t = t0.Add(10 * time.Millisecond)
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if len(c.slept) != 1 || c.slept[0] != 20*time.Millisecond {
		t.Errorf("slept %v, want one sleep of 20ms (remaining debounce window)", c.slept)
	}
	if gap := rds[1].Time.Sub(t0); gap < debounce {
		t.Errorf("timestamp gap %v shorter than debounce delay %v", gap, debounce)
	}
}

func TestNoDebounceSleepAfterQuietInterval(t *testing.T) {
	src := source.NewFake([]source.Impulse{{}, {}})
	m, c := newTestMeter(t, src, 1000, 30*time.Millisecond)

	rds := make([]Reading, 2)
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("bootstrap Read: %v", err)
	}

	c.t = t0.Add(time.Second)
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(c.slept) != 0 {
		t.Errorf("slept %v, want no sleeps when the window already passed", c.slept)
	}
}

func TestZeroIntervalYieldsInfinitePower(t *testing.T) {
	// Two impulses on the same clock reading happen on coarse clocks.
	// The division is deliberately not guarded; the reading records +Inf.
	src := source.NewFake([]source.Impulse{{}, {}})
	m, _ := newTestMeter(t, src, 1000, 0)

	rds := make([]Reading, 2)
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("bootstrap Read: %v", err)
	}
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !math.IsInf(rds[0].Value, 1) {
		t.Errorf("power = %v, want +Inf for a zero interval", rds[0].Value)
	}
}

func TestNegativeImpulseTagging(t *testing.T) {
	src := source.NewFake([]source.Impulse{
		{Neg: true},
		{Neg: true},
	})
	m, c := newTestMeter(t, src, 1000, 0)
	src.WaitHook = func(i int) {
		if i == 1 {
			c.t = t0.Add(time.Second)
		}
	}

	rds := make([]Reading, 2)
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("bootstrap Read: %v", err)
	}
	if rds[0].Channel != ChannelImpulseNeg {
		t.Errorf("bootstrap channel = %q, want %q", rds[0].Channel, ChannelImpulseNeg)
	}

	if _, err := m.Read(rds); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rds[0].Channel != ChannelPowerNeg || rds[1].Channel != ChannelImpulseNeg {
		t.Errorf("channels = %q, %q; want Power_neg, Impulse_neg", rds[0].Channel, rds[1].Channel)
	}
}

func TestDirectionMayFlipBetweenReads(t *testing.T) {
	src := source.NewFake([]source.Impulse{
		{Neg: false},
		{Neg: true},
		{Neg: false},
	})
	m, c := newTestMeter(t, src, 1000, 0)
	src.WaitHook = func(i int) {
		c.t = t0.Add(time.Duration(i) * time.Second)
	}

	rds := make([]Reading, 2)
	if _, err := m.Read(rds); err != nil {
		t.Fatalf("bootstrap Read: %v", err)
	}

	if _, err := m.Read(rds); err != nil {
		t.Fatalf("Read 2: %v", err)
	}
	if rds[0].Channel != ChannelPowerNeg {
		t.Errorf("second impulse: channel = %q, want %q", rds[0].Channel, ChannelPowerNeg)
	}

	if _, err := m.Read(rds); err != nil {
		t.Fatalf("Read 3: %v", err)
	}
	if rds[0].Channel != ChannelPower {
		t.Errorf("third impulse: channel = %q, want %q", rds[0].Channel, ChannelPower)
	}
}

func TestOpenResetsBootstrap(t *testing.T) {
	src := source.NewFake([]source.Impulse{{}, {}})
	m, c := newTestMeter(t, src, 1000, 0)

	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	rds := make([]Reading, 2)
	if n, _ := m.Read(rds); n != 1 {
		t.Fatalf("first Read after Open returned %d readings, want 1", n)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.Closed {
		t.Error("source not closed")
	}

	// Reopening restarts the bootstrap even though an impulse was seen.
	if err := m.Open(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	c.t = t0.Add(time.Minute)
	n, err := m.Read(rds)
	if err != nil {
		t.Fatalf("Read after reopen: %v", err)
	}
	if n != 1 || rds[0].Channel != ChannelImpulse {
		t.Errorf("after reopen: n=%d channel=%q, want a single Impulse reading", n, rds[0].Channel)
	}
}

func TestOpenFailurePropagates(t *testing.T) {
	src := source.NewFake(nil)
	src.OpenError = errors.New("simulated open failure")
	m, _ := newTestMeter(t, src, 1000, 0)

	if err := m.Open(); err == nil {
		t.Error("expected Open to fail")
	}
}

func TestEndToEndSerialScenario(t *testing.T) {
	// Serial-style source (always positive), resolution 1000,
	// debounce 30ms, impulses at t=0s and t=1s.
	src := source.NewFake([]source.Impulse{{}, {}})
	m, c := newTestMeter(t, src, 1000, 30*time.Millisecond)
	src.WaitHook = func(i int) {
		if i == 1 {
			c.t = t0.Add(time.Second)
		}
	}

	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	rds := make([]Reading, 2)
	n, err := m.Read(rds)
	if err != nil || n != 1 {
		t.Fatalf("first Read: n=%d err=%v", n, err)
	}
	if rds[0].Channel != ChannelImpulse || rds[0].Value != 1 || !rds[0].Time.Equal(t0) {
		t.Errorf("first reading = %+v, want Impulse@t0 value 1", rds[0])
	}

	n, err = m.Read(rds)
	if err != nil || n != 2 {
		t.Fatalf("second Read: n=%d err=%v", n, err)
	}
	t1 := t0.Add(time.Second)
	if rds[0].Channel != ChannelPower || math.Abs(rds[0].Value-3600.0) > 1e-9 || !rds[0].Time.Equal(t1) {
		t.Errorf("power reading = %+v, want Power@t1 value 3600", rds[0])
	}
	if rds[1].Channel != ChannelImpulse || rds[1].Value != 1 || !rds[1].Time.Equal(t1) {
		t.Errorf("impulse reading = %+v, want Impulse@t1 value 1", rds[1])
	}
}
