//go:build !linux

package source

import "errors"

type savedTermios struct{}

var errSerialUnsupported = errors.New("serial: impulse input requires linux")

// Open is not available on non-Linux platforms.
func (s *Serial) Open() error { return errSerialUnsupported }

// Close is not available on non-Linux platforms.
func (s *Serial) Close() error { return errSerialUnsupported }

// WaitForImpulse is not available on non-Linux platforms.
func (s *Serial) WaitForImpulse() (bool, error) { return false, errSerialUnsupported }
