package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/capture/internal/clock"
	"github.com/xtxerr/capture/internal/config"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/logging"
	"github.com/xtxerr/capture/internal/metrics"
	"github.com/xtxerr/capture/internal/recorder"
	"github.com/xtxerr/capture/internal/seal"
	"github.com/xtxerr/capture/internal/sensor"
	"github.com/xtxerr/capture/internal/storage/flash"
)

func cmdRecord(args []string, stdout io.Writer) error {
	var (
		cfgPath       string
		label         string
		intervalMs    float64
		lengthMs      uint32
		algorithm     string
		key           string
		image         string
		driver        string
		outDir        string
		wallClock     bool
		metricsListen string
		logLevel      string
	)

	fs := newFlagSet("record")
	fs.StringVarP(&cfgPath, "config", "c", "", "config file path")
	fs.StringVarP(&label, "label", "l", "", "recording label (overrides config)")
	fs.Float64Var(&intervalMs, "interval-ms", 0, "sample interval in milliseconds")
	fs.Uint32Var(&lengthMs, "length-ms", 0, "recording length in milliseconds")
	fs.StringVar(&algorithm, "algorithm", "", "signing algorithm: HS256, BLAKE3, BLAKE2b-256, none")
	fs.StringVar(&key, "key", "", "signing key (or CAPTURE_HMAC_KEY env)")
	fs.StringVar(&image, "image", "", "flash image path; empty string keeps the device in memory")
	fs.StringVar(&driver, "driver", "", "sensor driver: synthetic or snmp")
	fs.StringVarP(&outDir, "out", "o", "", "directory for sealed recordings")
	fs.BoolVar(&wallClock, "wall-clock", false, "stamp the header with the current time")
	fs.StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usagef("unexpected argument: %s", fs.Arg(0))
	}

	cfg, err := loadConfig(cfgPath, func(c *config.Config) {
		if fs.Changed("label") {
			c.Sampling.Label = label
		}
		if fs.Changed("interval-ms") {
			c.Sampling.IntervalMs = intervalMs
		}
		if fs.Changed("length-ms") {
			c.Sampling.LengthMs = lengthMs
		}
		if fs.Changed("algorithm") {
			c.Sampling.Algorithm = algorithm
		}
		if fs.Changed("key") {
			c.Sampling.HMACKey = key
		}
		if fs.Changed("image") {
			c.Storage.ImagePath = image
		}
		if fs.Changed("driver") {
			c.Sensor.Driver = driver
		}
		if fs.Changed("out") {
			c.Output.Dir = outDir
		}
		if fs.Changed("wall-clock") {
			c.Recorder.WallClock = wallClock
		}
		if fs.Changed("metrics-listen") {
			c.Metrics.Enabled = metricsListen != ""
			c.Metrics.Listen = metricsListen
		}
		if fs.Changed("log-level") {
			c.Logging.Level = logLevel
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithSessionID(ctx, uuid.NewString())

	res, err := record(ctx, cfg)
	if err != nil {
		return err
	}
	printResult(stdout, cfg, res)
	return nil
}

// record runs one session with everything cfg describes wired in, and
// serves metrics alongside it when enabled.
func record(ctx context.Context, cfg *config.Config) (*recorder.Result, error) {
	log := logging.WithContext(ctx).With("component", "capture")

	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		return nil, err
	}
	defer closeDev()

	drv, err := newDriver(cfg)
	if err != nil {
		return nil, err
	}
	defer drv.Stop()

	if got, want := sensor.SampleSize(drv), cfg.SampleSize(); got != want {
		return nil, errors.Mark(errors.ErrInvalidSampleSize,
			fmt.Errorf("driver delivers %d bytes per group, sensors need %d", got, want))
	}

	var m *metrics.Recorder
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	opts := recorder.Options{
		SettleDelay:  cfg.Recorder.SettleDelay,
		SafetyFactor: cfg.Recorder.EraseSafetyFactor,
		ScratchSize:  cfg.Recorder.ScratchSize,
		HeaderClock:  headerClock(cfg),
		Metrics:      m,
		Uploader:     newUploader(cfg, dev),
	}
	ctrl := recorder.New(dev, opts)

	g, gctx := errgroup.WithContext(ctx)
	sessionDone := make(chan struct{})

	if m != nil {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Info("serving metrics", "listen", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-sessionDone:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var res *recorder.Result
	g.Go(func() error {
		defer close(sessionDone)

		var err error
		res, err = ctrl.StartSampling(gctx, cfg.PayloadInfo(), cfg.SampleSize(), drv.Start)
		return err
	})

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func metricsMux(m *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// openDevice opens the configured flash image, or an in-memory device
// when no image path is set.
func openDevice(cfg *config.Config) (flash.Device, func(), error) {
	if cfg.Storage.ImagePath == "" {
		mem, err := flash.NewMemory(cfg.Geometry())
		if err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}

	f, err := flash.OpenFile(cfg.Storage.ImagePath, cfg.Geometry(), flash.FileOptions{
		SyncMode: cfg.Storage.SyncMode,
	})
	if err != nil {
		return nil, nil, err
	}
	return f, func() {
		if err := f.Close(); err != nil {
			logging.Warn("close flash image", "path", f.Path(), "error", err)
		}
	}, nil
}

func newDriver(cfg *config.Config) (sensor.Driver, error) {
	switch cfg.Sensor.Driver {
	case "snmp":
		return sensor.NewSNMP(cfg.SNMPDriver())
	default:
		return sensor.NewSynthetic(cfg.SyntheticDriver())
	}
}

func headerClock(cfg *config.Config) clock.Clock {
	if cfg.Recorder.WallClock {
		return clock.Real()
	}
	return clock.FixedUnix(cfg.Recorder.FixedTimestamp)
}

func newUploader(cfg *config.Config, dev flash.Device) recorder.Uploader {
	if cfg.Output.Dir == "" {
		return seal.NewLogUploader()
	}
	return seal.NewFileSealer(dev, cfg.Output.Dir)
}

func printResult(w io.Writer, cfg *config.Config, res *recorder.Result) {
	fmt.Fprintf(w, "label:      %s\n", res.Label)
	fmt.Fprintf(w, "samples:    %d of %d\n", res.SamplesRecorded, res.SamplesRequired)
	fmt.Fprintf(w, "stored:     %d bytes (header %d, payload %d)\n",
		res.StoredLength, res.HeaderLength, res.PayloadLength)
	fmt.Fprintf(w, "algorithm:  %s\n", res.Algorithm)
	fmt.Fprintf(w, "signature:  %s\n", res.Signature)
	fmt.Fprintf(w, "duration:   %s\n", res.Duration.Round(time.Millisecond))
	if cfg.Output.Dir != "" {
		fmt.Fprintf(w, "sealed:     %s\n", seal.NewFileSealer(nil, cfg.Output.Dir).Path(res.Label))
	}
}
