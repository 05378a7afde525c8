package domain

import "time"

// Clock supplies the current instant. Production code uses SystemClock;
// tests substitute a fixed clock to pin "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

var _ Clock = SystemClock{}
