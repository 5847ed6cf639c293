//go:build !linux

package source

import "errors"

// WaitForImpulse is not available on non-Linux platforms; the sysfs
// bring-up in Open still works against a test directory.
func (p *Pin) WaitForImpulse() (bool, error) {
	return false, errors.New("gpio: edge polling requires linux")
}
