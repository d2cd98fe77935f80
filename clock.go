package medcrypt

import "time"

// Clock abstracts time so grant expiry can be tested.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock { return realClock{} }
