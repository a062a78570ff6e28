// Package sensor provides the drivers that feed sample groups to the
// recorder.
//
// A driver delivers one sample group per interval as little-endian
// float32 values, one per axis, from its own goroutine. It stops as soon
// as the callback returns true or Stop is called.
package sensor

import (
	"time"

	"github.com/xtxerr/capture/internal/errors"
)

// Driver is a sample source. Start matches recorder.StartFunc.
type Driver interface {
	// Start begins delivering sample groups to onSamples every intervalMs.
	// raw is only valid for the duration of the call.
	Start(onSamples func(raw []byte) bool, intervalMs float64) error

	// Stop stops delivery and waits for the delivery goroutine to exit.
	Stop()

	// Axes is the number of float32 values per sample group.
	Axes() int
}

// SampleSize returns the byte size of one sample group from d.
func SampleSize(d Driver) uint32 {
	return uint32(d.Axes()) * 4
}

// interval converts a millisecond interval to a ticker period.
func interval(intervalMs float64) (time.Duration, error) {
	if !(intervalMs > 0) {
		return 0, errors.ErrInvalidInterval
	}
	d := time.Duration(intervalMs * float64(time.Millisecond))
	if d <= 0 {
		return 0, errors.ErrInvalidInterval
	}
	return d, nil
}
