// Package status provides a thread-safe status tracker for the s0-meter
// daemon. It is read by the HTTP handlers and feeds the snapshot payload
// attached to MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/s0-meter/internal/meter"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend     string // "gpio<N>" or the serial device path
	Resolution  int    // impulses per kWh
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Counts accumulates accepted impulses per direction.
type Counts struct {
	Impulses    int
	ImpulsesNeg int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Counts        Counts
	LastPowerW    float64
	LastImpulse   time.Time // zero until the first impulse
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// EnergyKWh estimates the net energy metered since startup from the
// impulse counts and the resolution.
func (s Snapshot) EnergyKWh() float64 {
	if s.Config.Resolution < 1 {
		return 0
	}
	return float64(s.Counts.Impulses-s.Counts.ImpulsesNeg) / float64(s.Config.Resolution)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordReading folds one meter reading into the tracked state.
// Called from the run loop for every published reading.
func (t *Tracker) RecordReading(r meter.Reading) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch r.Channel {
	case meter.ChannelImpulse:
		t.snap.Counts.Impulses++
		t.snap.LastImpulse = r.Time
	case meter.ChannelImpulseNeg:
		t.snap.Counts.ImpulsesNeg++
		t.snap.LastImpulse = r.Time
	case meter.ChannelPower:
		t.snap.LastPowerW = r.Value
	case meter.ChannelPowerNeg:
		t.snap.LastPowerW = -r.Value
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
