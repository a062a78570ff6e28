package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/capture/internal/errors"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Sampling.HMACKey = "secret"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Recorder.SettleDelay != 2*time.Second {
		t.Errorf("settle delay = %v, want 2s", cfg.Recorder.SettleDelay)
	}
	if cfg.Recorder.EraseSafetyFactor != 2 {
		t.Errorf("safety factor = %d, want 2", cfg.Recorder.EraseSafetyFactor)
	}
	if cfg.Recorder.FixedTimestamp != 4564867 {
		t.Errorf("fixed timestamp = %d", cfg.Recorder.FixedTimestamp)
	}
	if cfg.SampleSize() != 12 {
		t.Errorf("sample size = %d, want 12", cfg.SampleSize())
	}

	// The key has no default.
	if err := cfg.Validate(); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("expected missing key to fail validation, got %v", err)
	}
	if err := validConfig().Validate(); err != nil {
		t.Errorf("default config with a key should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"zero interval", func(c *Config) { c.Sampling.IntervalMs = 0 }, errors.ErrInvalidInterval},
		{"length below interval", func(c *Config) { c.Sampling.LengthMs = 5 }, errors.ErrInvalidLength},
		{"bad label", func(c *Config) { c.Sampling.Label = "../x" }, errors.ErrInvalidName},
		{"bad algorithm", func(c *Config) { c.Sampling.Algorithm = "MD5" }, errors.ErrUnsupportedAlgorithm},
		{"no sensors", func(c *Config) { c.Sampling.Sensors = nil }, errors.ErrMissingField},
		{"duplicate sensor", func(c *Config) {
			c.Sampling.Sensors = []SensorAxis{{Name: "x"}, {Name: "x"}}
		}, errors.ErrInvalidConfig},
		{"unaligned capacity", func(c *Config) { c.Storage.Capacity = 1000 }, errors.ErrInvalidConfig},
		{"bad sync mode", func(c *Config) { c.Storage.SyncMode = "sometimes" }, errors.ErrInvalidConfig},
		{"zero safety factor", func(c *Config) { c.Recorder.EraseSafetyFactor = 0 }, errors.ErrInvalidConfig},
		{"tiny scratch", func(c *Config) { c.Recorder.ScratchSize = 8 }, errors.ErrInvalidConfig},
		{"unknown driver", func(c *Config) { c.Sensor.Driver = "camera" }, errors.ErrInvalidConfig},
		{"snmp without host", func(c *Config) { c.Sensor.Driver = "snmp" }, errors.ErrMissingField},
		{"snmp oid count", func(c *Config) {
			c.Sensor.Driver = "snmp"
			c.Sensor.SNMP.Host = "10.0.0.1"
			c.Sensor.SNMP.Community = "public"
			c.Sensor.SNMP.OIDs = []string{"1.3.6.1.2.1.1.3.0"}
		}, errors.ErrInvalidConfig},
		{"bad compression", func(c *Config) { c.Output.ExportCompression = "rar" }, errors.ErrInvalidConfig},
		{"metrics without listen", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Listen = ""
		}, errors.ErrMissingField},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNoneAlgorithmNeedsNoKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sampling.Algorithm = "NONE"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.yaml")

	data := []byte(`
device:
  name: "00:11:22:33:44:55"
sampling:
  interval_ms: 100
  length_ms: 500
  label: wave.01
  hmac_key: from-file
  algorithm: blake3
  sensors:
    - name: ifInOctets
      units: B
    - name: ifOutOctets
      units: B
storage:
  image_path: ` + filepath.Join(dir, "flash.img") + `
  capacity: 65536
  block_size: 4096
recorder:
  settle_delay: 500ms
  wall_clock: true
sensor:
  driver: snmp
  snmp:
    host: 192.0.2.1
    community: public
    oids:
      - 1.3.6.1.2.1.2.2.1.10.1
      - 1.3.6.1.2.1.2.2.1.16.1
output:
  dir: ` + filepath.Join(dir, "out") + `
  export_compression: zstd
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("CAPTURE_HMAC_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sampling.HMACKey != "from-env" {
		t.Errorf("hmac key = %q, want the environment override", cfg.Sampling.HMACKey)
	}
	if cfg.Recorder.SettleDelay != 500*time.Millisecond || !cfg.Recorder.WallClock {
		t.Errorf("unexpected recorder config %+v", cfg.Recorder)
	}
	if cfg.Storage.BlockEraseTimeMs != 90 {
		t.Errorf("unset field lost its default: block_erase_time_ms = %d", cfg.Storage.BlockEraseTimeMs)
	}
	if cfg.SampleSize() != 8 {
		t.Errorf("sample size = %d, want 8", cfg.SampleSize())
	}

	info := cfg.PayloadInfo()
	if info.Label != "wave.01" || info.IntervalMs != 100 || len(info.Sensors) != 2 || info.Sensors[1].Units != "B" {
		t.Errorf("unexpected payload info %+v", info)
	}
	if geo := cfg.Geometry(); geo.Capacity != 65536 || geo.BlockSize != 4096 {
		t.Errorf("unexpected geometry %+v", geo)
	}
	if snmp := cfg.SNMPDriver(); snmp.Host != "192.0.2.1" || len(snmp.OIDs) != 2 || snmp.Port != 161 {
		t.Errorf("unexpected snmp driver config %+v", snmp)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("sampling: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestSyntheticDriver(t *testing.T) {
	cfg := validConfig()
	d := cfg.SyntheticDriver()
	if d.Axes != 3 || d.Amplitude != 1 || d.FrequencyHz != 1 {
		t.Errorf("unexpected synthetic config %+v", d)
	}
}
