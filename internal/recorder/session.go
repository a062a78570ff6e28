package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/capture/config"
	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/clock"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/logging"
	"github.com/xtxerr/capture/internal/metrics"
	"github.com/xtxerr/capture/internal/signing"
	"github.com/xtxerr/capture/internal/storage/flash"
)

// Encoder turns session metadata and sample groups into bytes. The header
// goes to the scratch writer; rows go to the sink it was created with.
// Everything emitted is fed to the session signer.
type Encoder interface {
	WriteHeader(scratch io.Writer, info acquisition.PayloadInfo) error
	AddSamples(values []float32) error
}

// EncoderFunc creates the encoder for one session.
type EncoderFunc func(sink acquisition.Sink, signer signing.Signer) Encoder

// StartFunc starts the sensor driver. The driver calls onSamples once per
// sample group from any goroutine and must stop once it returns true.
type StartFunc func(onSamples func(raw []byte) bool, intervalMs float64) error

// Uploader takes over a finished recording.
type Uploader interface {
	Upload(ctx context.Context, rec Recording) error
}

// Recording locates a finished recording on the device.
type Recording struct {
	Label         string
	HeaderLength  uint32
	PayloadLength uint32
	// StoredLength covers the header, the padded payload and the
	// terminator word.
	StoredLength uint32
	Signature    signing.Hash
	Algorithm    string
}

// Result reports a completed session.
type Result struct {
	Recording

	SamplesRequired uint32
	SamplesRecorded uint32
	BufferSize      uint32
	SettleDelay     time.Duration
	Duration        time.Duration
	Writer          WriterStats
}

// Options configures a Controller. Zero fields take their defaults.
type Options struct {
	// SettleDelay is the minimum wait between starting a session and
	// starting the driver.
	SettleDelay time.Duration

	// SafetyFactor multiplies the raw payload size. The erase extent is
	// the scaled payload plus ScratchSize.
	SafetyFactor uint32

	// ScratchSize is the header scratch buffer size. It is also the space
	// reserved for the header at the start of the erase extent.
	ScratchSize int

	// Clock drives the settle delay and session timing.
	Clock clock.Clock

	// HeaderClock supplies the header timestamp.
	HeaderClock clock.Clock

	Metrics    *metrics.Recorder
	Uploader   Uploader
	NewEncoder EncoderFunc
}

// DefaultOptions returns the default controller options.
func DefaultOptions() Options {
	return Options{
		SettleDelay:  config.DefaultSettleDelay,
		SafetyFactor: config.DefaultEraseSafetyFactor,
		ScratchSize:  config.DefaultScratchSize,
		Clock:        clock.Real(),
		HeaderClock:  clock.FixedUnix(config.DefaultFixedTimestamp),
		NewEncoder:   acquisitionEncoder,
	}
}

func acquisitionEncoder(sink acquisition.Sink, signer signing.Signer) Encoder {
	return acquisition.NewEncoder(sink, signer)
}

// Controller runs recording sessions against one block device, one at a
// time.
type Controller struct {
	dev  flash.Device
	opts Options

	mu sync.Mutex
}

// New creates a Controller for dev.
func New(dev flash.Device, opts Options) *Controller {
	def := DefaultOptions()
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = def.SettleDelay
	}
	if opts.SafetyFactor == 0 {
		opts.SafetyFactor = def.SafetyFactor
	}
	if opts.ScratchSize <= 0 {
		opts.ScratchSize = def.ScratchSize
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	if opts.HeaderClock == nil {
		opts.HeaderClock = def.HeaderClock
	}
	if opts.NewEncoder == nil {
		opts.NewEncoder = def.NewEncoder
	}

	return &Controller{
		dev:  dev,
		opts: opts,
	}
}

// SamplesRequired returns floor(lengthMs / intervalMs).
func SamplesRequired(lengthMs uint32, intervalMs float64) (uint32, error) {
	if intervalMs <= 0 || math.IsNaN(intervalMs) || math.IsInf(intervalMs, 0) {
		return 0, fmt.Errorf("interval %v ms: %w", intervalMs, errors.ErrInvalidInterval)
	}

	n := math.Floor(float64(lengthMs) / intervalMs)
	if n < 1 {
		return 0, fmt.Errorf("length %d ms at interval %v ms yields no samples: %w",
			lengthMs, intervalMs, errors.ErrInvalidLength)
	}
	return uint32(n), nil
}

// EraseExtent returns the number of bytes erased for a session: the raw
// payload scaled by safetyFactor, plus headerReserve bytes for the header.
func EraseExtent(required, sampleSize, safetyFactor uint32, headerReserve int) (uint32, error) {
	extent := uint64(required)*uint64(sampleSize)*uint64(safetyFactor) + uint64(headerReserve)
	if extent > math.MaxUint32 {
		return 0, errors.Mark(errors.ErrStorageEraseFailed,
			fmt.Errorf("buffer of %d bytes: %w", extent, errors.ErrOutOfRange))
	}
	return uint32(extent), nil
}

// SettleDelay returns the wait before sampling: the estimated time to
// erase bufferSize bytes, or minimum if that is longer. A device without
// a block size gets the minimum.
func SettleDelay(minimum time.Duration, bufferSize uint32, dev flash.Device) time.Duration {
	bs := dev.BlockSize()
	if bs == 0 {
		return minimum
	}
	blocks := uint64(bufferSize)/uint64(bs) + 1
	estimate := time.Duration(blocks*uint64(dev.BlockEraseTimeMs())) * time.Millisecond
	return max(minimum, estimate)
}

// StartSampling records one session: erase, header, settle, sample,
// finalize, upload. It blocks until the driver has delivered the required
// number of sample groups, a step fails, or ctx is cancelled.
//
// sampleSize is the byte size of one sample group as delivered to the
// callback. A cancelled session is left on the device unfinalized.
func (c *Controller) StartSampling(ctx context.Context, info acquisition.PayloadInfo, sampleSize uint32, start StartFunc) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	began := c.opts.Clock.Now()
	res, err := c.run(ctx, info, sampleSize, start)
	elapsed := c.opts.Clock.Now().Sub(began)

	outcome := metrics.ResultOK
	switch {
	case errors.Is(err, errors.ErrSessionCancelled):
		outcome = metrics.ResultCancelled
	case err != nil:
		outcome = metrics.ResultFailed
	}
	c.opts.Metrics.SessionFinished(outcome, elapsed)

	if res != nil {
		res.Duration = elapsed
	}
	return res, err
}

func (c *Controller) run(ctx context.Context, info acquisition.PayloadInfo, sampleSize uint32, start StartFunc) (*Result, error) {
	ctx = logging.ContextWithLabel(ctx, info.Label)
	log := logging.WithContext(ctx).With("component", "recorder")

	required, err := SamplesRequired(info.LengthMs, info.IntervalMs)
	if err != nil {
		return nil, err
	}
	if sampleSize == 0 {
		return nil, errors.ErrInvalidSampleSize
	}

	if c.dev.BlockSize() == 0 {
		return nil, errors.Mark(errors.ErrStorageEraseFailed,
			errors.New("device reports a zero block size"))
	}

	bufferSize, err := EraseExtent(required, sampleSize, c.opts.SafetyFactor, c.opts.ScratchSize)
	if err != nil {
		return nil, err
	}

	signer, err := signing.New(info.Algorithm, info.HMACKey)
	if err != nil {
		return nil, err
	}

	log.Info("sampling settings",
		"interval_ms", info.IntervalMs,
		"length_ms", info.LengthMs,
		"file", info.Label+".cbor",
		"algorithm", signer.Algorithm())
	log.Info("samples required", "samples", required, "buffer_bytes", bufferSize)

	delay := SettleDelay(c.opts.SettleDelay, bufferSize, c.dev)
	log.Info("starting", "in", delay)
	settled := c.opts.Clock.After(delay)

	erased, err := c.dev.Erase(0, bufferSize)
	if err != nil {
		return nil, errors.Mark(errors.ErrStorageEraseFailed, err)
	}
	if erased != bufferSize {
		return nil, errors.Mark(errors.ErrStorageEraseFailed,
			fmt.Errorf("erased %d of %d bytes", erased, bufferSize))
	}
	log.Info("done erasing")

	s := c.newSession(required, bufferSize, signer, log)
	if err := s.buildHeader(info, c.opts.ScratchSize); err != nil {
		return nil, err
	}
	log.Info("done header", "header_bytes", s.headerOffset)

	select {
	case <-settled:
	case <-ctx.Done():
		s.close()
		return nil, c.cancelled(ctx, s, log)
	}

	log.Info("sampling...")
	if err := start(s.onSamples, info.IntervalMs); err != nil {
		s.close()
		return nil, errors.Mark(errors.ErrDriverStartFailed, err)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		s.close()
		return nil, c.cancelled(ctx, s, log)
	}

	if err := s.failure(); err != nil {
		return nil, err
	}

	payload, sig, err := s.finalize()
	if err != nil {
		return nil, err
	}

	rec := Recording{
		Label:         info.Label,
		HeaderLength:  s.headerOffset,
		PayloadLength: payload,
		StoredLength:  s.headerOffset + payload + wordSize,
		Signature:     sig,
		Algorithm:     signer.Algorithm(),
	}
	log.Info("Used buffer", "from", 0, "to", rec.StoredLength)

	res := &Result{
		Recording:       rec,
		SamplesRequired: required,
		SamplesRecorded: s.current.Load(),
		BufferSize:      bufferSize,
		SettleDelay:     delay,
		Writer:          s.writer.Stats(),
	}

	if c.opts.Uploader != nil {
		if err := c.opts.Uploader.Upload(ctx, rec); err != nil {
			return res, errors.Mark(errors.ErrUploadFailed, err)
		}
	}
	return res, nil
}

func (c *Controller) cancelled(ctx context.Context, s *session, log *slog.Logger) error {
	log.Warn("session cancelled",
		"samples", s.current.Load(),
		"required", s.required,
		"error", ctx.Err())
	return errors.Mark(errors.ErrSessionCancelled, ctx.Err())
}

// session is the state of one recording. The driver goroutine and the
// controller share it; mu serializes the writer, encoder and signer.
type session struct {
	dev     flash.Device
	writer  *WordWriter
	signer  signing.Signer
	enc     Encoder
	metrics *metrics.Recorder
	log     *slog.Logger

	required     uint32
	current      atomic.Uint32
	bufferSize   uint32
	headerOffset uint32

	mu     sync.Mutex
	closed bool
	err    error

	done     chan struct{}
	doneOnce sync.Once
}

func (c *Controller) newSession(required, bufferSize uint32, signer signing.Signer, log *slog.Logger) *session {
	w := newWordWriter(c.dev, c.opts.HeaderClock, c.opts.Metrics, log)
	return &session{
		dev:        c.dev,
		writer:     w,
		signer:     signer,
		enc:        c.opts.NewEncoder(w, signer),
		metrics:    c.opts.Metrics,
		log:        log,
		required:   required,
		bufferSize: bufferSize,
		done:       make(chan struct{}),
	}
}

// close stops accepting sample groups.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *session) closeLocked() {
	s.closed = true
	s.doneOnce.Do(func() { close(s.done) })
}

// failure returns the error that ended sampling, if any.
func (s *session) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
