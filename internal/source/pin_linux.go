//go:build linux

package source

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// WaitForImpulse blocks until a rising edge fires on the impulse pin.
// Sysfs reports edges as exceptional conditions, so the poll asks for
// POLLPRI; any other wakeup is a failed wait. The value byte is read at
// offset 0 to rearm the interrupt.
func (p *Pin) WaitForImpulse() (bool, error) {
	if p.value == nil {
		return false, errors.New("gpio: not open")
	}

	fds := []unix.PollFd{{
		Fd:     int32(p.value.Fd()),
		Events: unix.POLLPRI | unix.POLLERR,
	}}
	n, err := unix.Poll(fds, -1) // block endlessly
	if err != nil {
		return false, fmt.Errorf("gpio%d: poll: %w", p.cfg.Pin, err)
	}
	if n < 1 || fds[0].Revents&unix.POLLPRI == 0 {
		return false, fmt.Errorf("gpio%d: poll woke without edge (revents %#x)", p.cfg.Pin, fds[0].Revents)
	}

	buf := make([]byte, 1)
	if n, err := unix.Pread(int(p.value.Fd()), buf, 0); err != nil || n < 1 {
		return false, fmt.Errorf("gpio%d: read value: %v", p.cfg.Pin, err)
	}

	if p.dir == nil {
		return false, nil
	}
	if n, err := unix.Pread(int(p.dir.Fd()), buf, 0); err != nil || n < 1 {
		return false, fmt.Errorf("gpio%d: read direction: %v", p.cfg.DirPin, err)
	}
	return buf[0] != '0', nil
}
