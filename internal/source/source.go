// Package source provides impulse input with hardware abstraction.
// An S0 energy meter closes a contact once per metered unit of energy;
// the pulse arrives either as a byte on a serial line (opto-coupler on
// RS232) or as a rising edge on a sysfs-exported GPIO pin. The fake
// implementation allows testing without hardware.
package source

import "fmt"

// Source is the capability a single impulse input offers.
type Source interface {
	// Open acquires the underlying device. Setup failures that indicate
	// a broken system (rather than a busy device) are reported as
	// *SetupError.
	Open() error

	// Close releases the device, restoring any configuration Open
	// changed. It returns an error when the source is not open.
	Close() error

	// WaitForImpulse blocks until one physical impulse occurs and
	// returns its direction sign. neg is true when the meter reports
	// reversed energy flow; inputs without direction sensing always
	// report false. There is no timeout; a caller needing to abort
	// must close the underlying device from outside.
	WaitForImpulse() (neg bool, err error)
}

// SetupError marks a hardware bring-up step that should always succeed
// on a correctly configured system but did not. Callers should treat it
// as fatal instead of retrying.
type SetupError struct {
	Attr string // device or sysfs attribute that failed
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Attr, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
