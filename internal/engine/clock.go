package engine

import "time"

// Clock abstracts "now" so deposit deadlines and late-return fees are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock { return realClock{} }
