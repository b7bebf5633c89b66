package usecase

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock is injected into polling loops so tests can advance time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now().UTC() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
func SystemClock() Clock { return systemClock{} }

func newID() string { return ulid.Make().String() }
