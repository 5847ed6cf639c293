package source

import "errors"

// Impulse is one scripted impulse for the fake source.
type Impulse struct {
	Neg bool  // direction sign reported for this impulse
	Err error // if set, the wait fails instead
}

// Fake is a test double that replays scripted impulses.
type Fake struct {
	// Impulses contains the scripted impulses. Each WaitForImpulse
	// consumes the next one; an exhausted script fails the wait
	// (a real source would block forever, which no test wants).
	Impulses []Impulse

	// index tracks current position in Impulses
	index int

	// OpenError and CloseError, if set, are returned by Open/Close.
	OpenError  error
	CloseError error

	// Opened and Closed track lifecycle calls.
	Opened bool
	Closed bool

	// Waits counts WaitForImpulse calls, including failed ones.
	Waits int

	// WaitHook, if set, runs before each wait with the impulse index.
	// Tests use it to advance a fake clock between impulses.
	WaitHook func(i int)
}

// NewFake creates a Fake replaying the given impulses.
func NewFake(impulses []Impulse) *Fake {
	return &Fake{Impulses: impulses}
}

// Open marks the source as opened.
func (f *Fake) Open() error {
	if f.OpenError != nil {
		return f.OpenError
	}
	f.Opened = true
	f.Closed = false
	return nil
}

// Close marks the source as closed.
func (f *Fake) Close() error {
	if f.CloseError != nil {
		return f.CloseError
	}
	f.Closed = true
	return nil
}

// WaitForImpulse returns the next scripted impulse.
func (f *Fake) WaitForImpulse() (bool, error) {
	f.Waits++
	if f.index >= len(f.Impulses) {
		return false, errors.New("fake: no impulses left")
	}
	if f.WaitHook != nil {
		f.WaitHook(f.index)
	}
	imp := f.Impulses[f.index]
	f.index++
	if imp.Err != nil {
		return false, imp.Err
	}
	return imp.Neg, nil
}

// Reset rewinds the script.
func (f *Fake) Reset() {
	f.index = 0
	f.Waits = 0
	f.Opened = false
	f.Closed = false
}
