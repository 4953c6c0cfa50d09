package engine

import "time"

// Clock abstracts wall-clock time so tick-gated stage transitions can be
// tested by advancing a fake clock instead of sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
