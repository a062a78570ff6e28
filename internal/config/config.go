// Package config loads the capture configuration.
//
// Values are read from a YAML file over DefaultConfig, then the
// CAPTURE_HMAC_KEY environment variable and command-line flags are
// applied on top. Defaults are documented in the top-level config
// package.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/capture/config"
	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/sensor"
	"github.com/xtxerr/capture/internal/storage/flash"
)

// Config represents the complete capture configuration.
type Config struct {
	// Device identifies the recording device in the header.
	Device DeviceConfig `yaml:"device"`

	// Sampling describes what is recorded and how it is signed.
	Sampling SamplingConfig `yaml:"sampling"`

	// Storage describes the emulated flash device.
	Storage StorageConfig `yaml:"storage"`

	// Recorder tunes the session controller.
	Recorder RecorderConfig `yaml:"recorder"`

	// Sensor selects and configures the sample source.
	Sensor SensorConfig `yaml:"sensor"`

	// Output configures sealing and export.
	Output OutputConfig `yaml:"output"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// DeviceConfig identifies the device.
type DeviceConfig struct {
	// Name is usually the device MAC address.
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// SamplingConfig describes one recording.
type SamplingConfig struct {
	IntervalMs float64 `yaml:"interval_ms"`
	LengthMs   uint32  `yaml:"length_ms"`
	Label      string  `yaml:"label"`

	// HMACKey is the signing key. CAPTURE_HMAC_KEY overrides it.
	HMACKey string `yaml:"hmac_key"`

	// Algorithm is one of HS256, BLAKE3, BLAKE2b-256, none.
	Algorithm string `yaml:"algorithm"`

	// Sensors lists the axes of each sample group, in order.
	Sensors []SensorAxis `yaml:"sensors"`
}

// SensorAxis describes one value of a sample group.
type SensorAxis struct {
	Name  string `yaml:"name"`
	Units string `yaml:"units"`
}

// StorageConfig describes the flash image.
type StorageConfig struct {
	// ImagePath is the image file. Empty keeps the device in memory.
	ImagePath        string `yaml:"image_path"`
	Capacity         uint32 `yaml:"capacity"`
	BlockSize        uint32 `yaml:"block_size"`
	BlockEraseTimeMs uint32 `yaml:"block_erase_time_ms"`

	// SyncMode is async or fsync.
	SyncMode string `yaml:"sync_mode"`
}

// RecorderConfig tunes the session controller.
type RecorderConfig struct {
	// SettleDelay is the minimum wait before sampling starts.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// EraseSafetyFactor over-reserves the erase extent.
	EraseSafetyFactor uint32 `yaml:"erase_safety_factor"`

	// ScratchSize is the header scratch buffer size.
	ScratchSize int `yaml:"scratch_size"`

	// FixedTimestamp is the header timestamp unless WallClock is set.
	FixedTimestamp int64 `yaml:"fixed_timestamp"`

	// WallClock stamps headers with the current time.
	WallClock bool `yaml:"wall_clock"`
}

// SensorConfig selects the sample source.
type SensorConfig struct {
	// Driver is synthetic or snmp.
	Driver string `yaml:"driver"`

	Synthetic SyntheticConfig `yaml:"synthetic"`
	SNMP      SNMPConfig      `yaml:"snmp"`
}

// SyntheticConfig configures the waveform generator.
type SyntheticConfig struct {
	Amplitude   float64 `yaml:"amplitude"`
	FrequencyHz float64 `yaml:"frequency_hz"`
}

// SNMPConfig configures the SNMP poller. OIDs map to sampling.sensors
// by position.
type SNMPConfig struct {
	Host      string   `yaml:"host"`
	Port      uint16   `yaml:"port"`
	OIDs      []string `yaml:"oids"`
	Community string   `yaml:"community"`

	SecurityName  string `yaml:"security_name"`
	SecurityLevel string `yaml:"security_level"`
	AuthProtocol  string `yaml:"auth_protocol"`
	AuthPassword  string `yaml:"auth_password"`
	PrivProtocol  string `yaml:"priv_protocol"`
	PrivPassword  string `yaml:"priv_password"`
	ContextName   string `yaml:"context_name"`

	TimeoutMs uint32 `yaml:"timeout_ms"`
	Retries   uint32 `yaml:"retries"`
}

// OutputConfig configures what happens to a finished recording.
type OutputConfig struct {
	// Dir receives sealed recordings. Empty leaves them on the device.
	Dir string `yaml:"dir"`

	// ExportCompression is the Parquet codec for exports:
	// none, snappy, gzip, zstd, lz4, brotli.
	ExportCompression string `yaml:"export_compression"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load loads configuration from a YAML file, applies the environment and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if key := getenv(config.EnvHMACKey); key != "" {
		c.Sampling.HMACKey = key
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "capture-0",
			Type: config.DefaultDeviceType,
		},
		Sampling: SamplingConfig{
			IntervalMs: config.DefaultIntervalMs,
			LengthMs:   config.DefaultLengthMs,
			Label:      "recording",
			Algorithm:  config.DefaultAlgorithm,
			Sensors: []SensorAxis{
				{Name: "accX", Units: "m/s2"},
				{Name: "accY", Units: "m/s2"},
				{Name: "accZ", Units: "m/s2"},
			},
		},
		Storage: StorageConfig{
			ImagePath:        config.DefaultImagePath,
			Capacity:         config.DefaultCapacity,
			BlockSize:        config.DefaultBlockSize,
			BlockEraseTimeMs: config.DefaultBlockEraseTimeMs,
			SyncMode:         "async",
		},
		Recorder: RecorderConfig{
			SettleDelay:       config.DefaultSettleDelay,
			EraseSafetyFactor: config.DefaultEraseSafetyFactor,
			ScratchSize:       config.DefaultScratchSize,
			FixedTimestamp:    config.DefaultFixedTimestamp,
		},
		Sensor: SensorConfig{
			Driver: "synthetic",
			Synthetic: SyntheticConfig{
				Amplitude:   1,
				FrequencyHz: 1,
			},
			SNMP: SNMPConfig{
				Port:      config.DefaultSNMPPort,
				TimeoutMs: config.DefaultSNMPTimeoutMs,
				Retries:   config.DefaultSNMPRetries,
			},
		},
		Output: OutputConfig{
			ExportCompression: "none",
		},
		Metrics: MetricsConfig{
			Listen: config.DefaultMetricsListen,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SampleSize is the byte size of one sample group: one float32 per axis.
func (c *Config) SampleSize() uint32 {
	return uint32(len(c.Sampling.Sensors)) * 4
}

// PayloadInfo returns the session metadata for the recorder.
func (c *Config) PayloadInfo() acquisition.PayloadInfo {
	sensors := make([]acquisition.Sensor, len(c.Sampling.Sensors))
	for i, s := range c.Sampling.Sensors {
		sensors[i] = acquisition.Sensor{Name: s.Name, Units: s.Units}
	}

	return acquisition.PayloadInfo{
		DeviceName: c.Device.Name,
		DeviceType: c.Device.Type,
		IntervalMs: c.Sampling.IntervalMs,
		LengthMs:   c.Sampling.LengthMs,
		Label:      c.Sampling.Label,
		Sensors:    sensors,
		Algorithm:  c.Sampling.Algorithm,
		HMACKey:    c.Sampling.HMACKey,
	}
}

// Geometry returns the flash geometry.
func (c *Config) Geometry() flash.Geometry {
	return flash.Geometry{
		Capacity:         c.Storage.Capacity,
		BlockSize:        c.Storage.BlockSize,
		BlockEraseTimeMs: c.Storage.BlockEraseTimeMs,
	}
}

// SyntheticDriver returns the waveform generator configuration.
func (c *Config) SyntheticDriver() sensor.SyntheticConfig {
	return sensor.SyntheticConfig{
		Axes:        len(c.Sampling.Sensors),
		Amplitude:   c.Sensor.Synthetic.Amplitude,
		FrequencyHz: c.Sensor.Synthetic.FrequencyHz,
	}
}

// SNMPDriver returns the SNMP poller configuration.
func (c *Config) SNMPDriver() sensor.SNMPConfig {
	s := c.Sensor.SNMP
	return sensor.SNMPConfig{
		Host:          s.Host,
		Port:          s.Port,
		OIDs:          s.OIDs,
		Community:     s.Community,
		SecurityName:  s.SecurityName,
		SecurityLevel: s.SecurityLevel,
		AuthProtocol:  s.AuthProtocol,
		AuthPassword:  s.AuthPassword,
		PrivProtocol:  s.PrivProtocol,
		PrivPassword:  s.PrivPassword,
		ContextName:   s.ContextName,
		TimeoutMs:     s.TimeoutMs,
		Retries:       s.Retries,
	}
}
