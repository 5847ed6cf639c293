package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// NoDirPin disables direction sensing on a Pin.
const NoDirPin = -1

// PinConfig describes a sysfs GPIO impulse input.
type PinConfig struct {
	// Pin is the GPIO number carrying the S0 impulses.
	Pin int

	// DirPin, unless set to NoDirPin, is sampled on every impulse; a
	// non-zero level marks the impulse as negative (energy flowing
	// back into the grid). It must differ from Pin.
	DirPin int

	// ConfigureGPIO controls whether Open exports the pins and programs
	// direction, edge and active_low itself. When false the pins must
	// already be set up by the system (udev rule, boot script).
	ConfigureGPIO bool
}

// Pin reads S0 impulses from a sysfs-exported GPIO pin, waking on
// rising-edge interrupts.
type Pin struct {
	cfg  PinConfig
	root string // sysfs gpio class directory, overridable in tests

	value *os.File // main pin value file
	dir   *os.File // direction pin value file, nil without DirPin
}

// NewPin validates the pin numbers and derives the sysfs paths. The
// hardware is not touched until Open.
func NewPin(cfg PinConfig) (*Pin, error) {
	if cfg.Pin < 0 {
		return nil, fmt.Errorf("gpio: invalid pin %d", cfg.Pin)
	}
	if cfg.DirPin != NoDirPin && cfg.DirPin < 0 {
		return nil, fmt.Errorf("gpio: invalid direction pin %d", cfg.DirPin)
	}
	if cfg.DirPin == cfg.Pin {
		return nil, errors.New("gpio: direction pin must differ from impulse pin")
	}
	return &Pin{cfg: cfg, root: "/sys/class/gpio"}, nil
}

// Open brings up the impulse pin and, if configured, the direction pin.
// Pins left exported by a previous run are reused; only the attribute
// writes are repeated.
func (p *Pin) Open() error {
	f, err := p.openPin(p.cfg.Pin)
	if err != nil {
		return err
	}
	p.value = f

	if p.cfg.DirPin != NoDirPin {
		f, err := p.openPin(p.cfg.DirPin)
		if err != nil {
			// Leave no half-opened state behind.
			p.value.Close()
			p.value = nil
			return err
		}
		p.dir = f
	}

	return nil
}

// Close closes whichever pin descriptors are open. The export is left
// in place so a restart can take the fast path.
func (p *Pin) Close() error {
	if p.value == nil && p.dir == nil {
		return errors.New("gpio: not open")
	}
	if p.value != nil {
		p.value.Close()
		p.value = nil
	}
	if p.dir != nil {
		p.dir.Close()
		p.dir = nil
	}
	return nil
}

// openPin exports and configures a single pin as needed, then opens its
// value file. Attribute failures are *SetupError because they mean the
// system's GPIO support is broken; the final open is a plain error
// because the pin may just be busy.
func (p *Pin) openPin(pin int) (*os.File, error) {
	path := p.valuePath(pin)
	if _, err := os.Stat(path); err != nil {
		if !p.cfg.ConfigureGPIO {
			return nil, fmt.Errorf("gpio%d: %s missing and pin management is disabled", pin, path)
		}
		if err := p.writeAttr(filepath.Join(p.root, "export"), fmt.Sprintf("%d\n", pin)); err != nil {
			return nil, err
		}
	}

	if p.cfg.ConfigureGPIO {
		base := filepath.Join(p.root, fmt.Sprintf("gpio%d", pin))
		for _, attr := range []struct{ name, payload string }{
			{"direction", "in\n"},
			{"edge", "rising\n"},
			{"active_low", "0\n"},
		} {
			if err := p.writeAttr(filepath.Join(base, attr.name), attr.payload); err != nil {
				return nil, err
			}
		}
	}

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_EXCL, 0)
	if err != nil {
		return nil, fmt.Errorf("gpio%d: open value: %w", pin, err)
	}
	return f, nil
}

// writeAttr writes one sysfs attribute and verifies the kernel took the
// full payload.
func (p *Pin) writeAttr(path, payload string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return &SetupError{Attr: path, Err: err}
	}
	n, err := f.WriteString(payload)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &SetupError{Attr: path, Err: err}
	}
	if n != len(payload) {
		return &SetupError{Attr: path, Err: fmt.Errorf("short write (%d of %d bytes)", n, len(payload))}
	}
	return nil
}

func (p *Pin) valuePath(pin int) string {
	return filepath.Join(p.root, fmt.Sprintf("gpio%d", pin), "value")
}
