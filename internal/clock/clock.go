// Package clock abstracts the two time sources the recorder depends on:
// the clock that paces the settle delay, and the clock that stamps the
// recording header.
//
// Production code injects Real() for delays. Header timestamps default
// to Fixed(...) so that identical inputs produce identical recordings
// and signatures.
package clock

import "time"

// Clock abstracts time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time {
	if d <= 0 {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return time.After(d)
}

// Fixed returns a Clock whose time never moves. Waits complete
// immediately and report the fixed instant.
func Fixed(t time.Time) Clock { return fixedClock{t: t} }

// FixedUnix is Fixed for a Unix timestamp in seconds.
func FixedUnix(sec int64) Clock { return Fixed(time.Unix(sec, 0)) }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func (c fixedClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.t
	return ch
}
