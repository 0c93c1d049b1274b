package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so invocation timings are deterministic in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant, advanced by Step on each call.
type Fixed struct {
	At   time.Time
	Step time.Duration

	mu sync.Mutex
	n  int
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.At.Add(time.Duration(f.n) * f.Step)
	f.n++
	return now
}
