//go:build linux

package source

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/sys/unix"
)

type savedTermios = unix.Termios

// Open opens the device and switches it to raw 300 baud reception:
// 8 data bits, receiver enabled, modem control ignored, parity errors
// dropped, and blocking reads that return as soon as one byte arrives.
// The previous line settings are kept for restoration on Close.
func (s *Serial) Open() error {
	fd, err := unix.Open(s.device, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.device, err)
	}

	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("tcgetattr %s: %w", s.device, err)
	}

	tio := unix.Termios{
		Cflag:  unix.B300 | unix.CS8 | unix.CLOCAL | unix.CREAD,
		Iflag:  unix.IGNPAR,
		Ispeed: unix.B300,
		Ospeed: unix.B300,
	}
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		unix.Close(fd)
		return fmt.Errorf("flush %s: %w", s.device, err)
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &tio); err != nil {
		unix.Close(fd)
		return fmt.Errorf("tcsetattr %s: %w", s.device, err)
	}

	s.oldTio = old
	s.fd = fd
	return nil
}

// Close restores the saved line settings and closes the device.
func (s *Serial) Close() error {
	if s.fd < 0 {
		return errors.New("serial: not open")
	}
	if s.oldTio != nil {
		if err := unix.IoctlSetTermios(s.fd, unix.TCSETS, s.oldTio); err != nil {
			// The descriptor still has to be closed.
			log.Printf("serial: restore settings on %s: %v", s.device, err)
		}
	}
	err := unix.Close(s.fd)
	s.fd = -1
	s.oldTio = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", s.device, err)
	}
	return nil
}

// WaitForImpulse blocks until a byte arrives on the line. Bytes that
// piled up since the last call are dropped first so one mechanical
// pulse is not counted several times.
func (s *Serial) WaitForImpulse() (bool, error) {
	if s.fd < 0 {
		return false, errors.New("serial: not open")
	}

	if err := unix.IoctlSetInt(s.fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		return false, fmt.Errorf("flush %s: %w", s.device, err)
	}

	buf := make([]byte, 8)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", s.device, err)
	}
	if n < 1 {
		return false, fmt.Errorf("read %s: no data", s.device)
	}

	// The UART carries no direction information.
	return false, nil
}
