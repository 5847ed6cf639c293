// Package meter turns S0 impulses into timestamped impulse and power
// readings. It owns the temporal state machine around a single impulse
// source: first-impulse bootstrap, debounce suppression and the
// derivation of instantaneous power from the inter-impulse interval.
package meter

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/s0-meter/internal/source"
)

// wattSecondsPerKWh converts the impulses-per-kWh resolution into
// watts: power = 3.6e6 / (interval_seconds * resolution).
const wattSecondsPerKWh = 3600000

// Defaults applied by the configuration layer when the keys are absent.
const (
	DefaultResolution    = 1000 // impulses per kWh
	DefaultDebounceDelay = 30 * time.Millisecond
)

// Meter drives one impulse source. Not safe for concurrent use: exactly
// one goroutine calls Open, Read and Close.
type Meter struct {
	src        source.Source
	resolution int
	debounce   time.Duration

	impulseSeen bool      // bootstrap impulse observed since Open
	lastImpulse time.Time // valid only when impulseSeen

	// clock hooks, replaced in tests
	now   func() time.Time
	sleep func(time.Duration)
}

// New validates the calibration values and wraps the impulse source.
// resolution is in impulses per kWh.
func New(src source.Source, resolution int, debounce time.Duration) (*Meter, error) {
	if src == nil {
		return nil, errors.New("meter: impulse source required")
	}
	if resolution < 1 {
		return nil, fmt.Errorf("meter: resolution must be greater than 0, got %d", resolution)
	}
	if debounce < 0 {
		return nil, fmt.Errorf("meter: debounce delay must not be negative, got %v", debounce)
	}
	return &Meter{
		src:        src,
		resolution: resolution,
		debounce:   debounce,
		now:        time.Now,
		sleep:      time.Sleep,
	}, nil
}

// Open opens the impulse source and restarts the first-impulse
// bootstrap.
func (m *Meter) Open() error {
	if err := m.src.Open(); err != nil {
		return err
	}
	m.impulseSeen = false
	return nil
}

// Close closes the impulse source.
func (m *Meter) Close() error {
	return m.src.Close()
}

// Read blocks until the next impulse and writes the resulting readings
// into rds, returning how many were written. The first impulse after
// Open yields a single Impulse reading; every later impulse yields a
// Power reading followed by an Impulse reading, both stamped with the
// impulse time. Callers must provide room for at least two readings or
// the call does nothing. A failed wait returns (0, err) and leaves the
// state untouched so the caller can retry.
func (m *Meter) Read(rds []Reading) (int, error) {
	if len(rds) < 2 {
		return 0, nil
	}

	if !m.impulseSeen {
		neg, err := m.src.WaitForImpulse()
		if err != nil {
			return 0, fmt.Errorf("wait for first impulse: %w", err)
		}
		m.lastImpulse = m.now()
		m.impulseSeen = true
		rds[0] = Reading{Channel: impulseChannel(neg), Time: m.lastImpulse, Value: 1}
		return 1, nil
	}

	// Contact bounce shows up as a burst of impulses within one
	// mechanical closure. Hold off until the debounce window since the
	// last accepted impulse has fully elapsed before arming the wait.
	if elapsed := m.now().Sub(m.lastImpulse); elapsed < m.debounce {
		remaining := m.debounce - elapsed
		log.Printf("meter: waiting %v for debouncing", remaining)
		m.sleep(remaining)
	}

	neg, err := m.src.WaitForImpulse()
	if err != nil {
		return 0, fmt.Errorf("wait for impulse: %w", err)
	}

	now := m.now()
	interval := now.Sub(m.lastImpulse).Seconds()
	power := wattSecondsPerKWh / (interval * float64(m.resolution))
	m.lastImpulse = now

	rds[0] = Reading{Channel: powerChannel(neg), Time: now, Value: power}
	rds[1] = Reading{Channel: impulseChannel(neg), Time: now, Value: 1}
	return 2, nil
}
