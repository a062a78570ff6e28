package sensor

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/capture/internal/logging"
	"github.com/xtxerr/capture/internal/recorder"
)

// SyntheticConfig configures the waveform generator.
type SyntheticConfig struct {
	// Axes is the number of values per sample group.
	Axes int

	// Amplitude of every axis.
	Amplitude float64

	// FrequencyHz of every axis. Axes are spread evenly in phase.
	FrequencyHz float64
}

// Synthetic generates sine waves, one per axis.
type Synthetic struct {
	cfg SyntheticConfig
	log *slog.Logger

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	delivered atomic.Uint64
}

// NewSynthetic creates a waveform generator.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Axes <= 0 {
		return nil, fmt.Errorf("synthetic driver needs at least one axis, got %d", cfg.Axes)
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 1
	}
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = 1
	}

	return &Synthetic{
		cfg:  cfg,
		log:  logging.Component("sensor.synthetic"),
		stop: make(chan struct{}),
	}, nil
}

// Axes implements Driver.
func (s *Synthetic) Axes() int { return s.cfg.Axes }

// Delivered returns the number of sample groups handed to the callback.
func (s *Synthetic) Delivered() uint64 { return s.delivered.Load() }

// Start implements Driver.
func (s *Synthetic) Start(onSamples func(raw []byte) bool, intervalMs float64) error {
	period, err := interval(intervalMs)
	if err != nil {
		return err
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("synthetic driver already started")
	}

	s.log.Debug("starting", "axes", s.cfg.Axes, "interval_ms", intervalMs)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		buf := make([]byte, 0, 4*s.cfg.Axes)
		for i := 0; ; i++ {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}

			buf = recorder.EncodeSamples(buf[:0], s.Sample(i, intervalMs))
			s.delivered.Add(1)
			if onSamples(buf) {
				s.log.Debug("stopped by recorder", "delivered", s.delivered.Load())
				return
			}
		}
	}()
	return nil
}

// Sample returns the values of sample group i.
func (s *Synthetic) Sample(i int, intervalMs float64) []float32 {
	t := float64(i) * intervalMs / 1000
	values := make([]float32, s.cfg.Axes)
	for axis := range values {
		phase := 2 * math.Pi * float64(axis) / float64(s.cfg.Axes)
		values[axis] = float32(s.cfg.Amplitude * math.Sin(2*math.Pi*s.cfg.FrequencyHz*t+phase))
	}
	return values
}

// Stop implements Driver.
func (s *Synthetic) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}
