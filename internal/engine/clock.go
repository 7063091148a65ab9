package engine

import "time"

// Clock supplies the wall time a pass is stamped with. Every entry of one
// pass shares the pass's start time; append order breaks ties.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
