package source

import "errors"

// Serial counts impulses arriving as bytes on a serial device. S0
// adapters for RS232 toggle a data line on every meter pulse, so any
// received byte is one impulse; the byte's content is irrelevant and
// the line cannot sense direction.
type Serial struct {
	device string
	fd     int
	oldTio *savedTermios // settings to restore on Close
}

// NewSerial creates a serial impulse source for the given character
// device. The device is not touched until Open.
func NewSerial(device string) (*Serial, error) {
	if device == "" {
		return nil, errors.New("serial: device path required")
	}
	return &Serial{device: device, fd: -1}, nil
}
