package interaction

import "time"

// Timer is a pending deferred call.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so tests can fire the listen timer deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
