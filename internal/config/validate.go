package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/signing"
	"github.com/xtxerr/capture/internal/validation"
)

// ExportCompressions lists the accepted output.export_compression values.
var ExportCompressions = []string{"none", "snappy", "gzip", "zstd", "lz4", "brotli"}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Device.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("device: %w", err))
	}
	if err := c.Sampling.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sampling: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Recorder.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}
	if err := c.validateSensor(); err != nil {
		errs = append(errs, fmt.Errorf("sensor: %w", err))
	}
	if err := c.Output.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the device configuration.
func (c *DeviceConfig) Validate() error {
	var errs []error

	if err := validation.ValidateDeviceName(c.Name); err != nil {
		errs = append(errs, fmt.Errorf("name: %w", err))
	}
	if c.Type == "" {
		errs = append(errs, errors.NewMissingField("type"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the sampling configuration.
func (c *SamplingConfig) Validate() error {
	var errs []error

	switch {
	case !(c.IntervalMs > 0) || math.IsInf(c.IntervalMs, 0):
		errs = append(errs, fmt.Errorf("interval_ms must be positive: %w", errors.ErrInvalidInterval))
	case float64(c.LengthMs) < c.IntervalMs:
		errs = append(errs, fmt.Errorf("length_ms %d is shorter than one interval: %w",
			c.LengthMs, errors.ErrInvalidLength))
	}

	if err := validation.ValidateLabel(c.Label); err != nil {
		errs = append(errs, fmt.Errorf("label: %w", err))
	}

	alg, err := signing.Normalize(c.Algorithm)
	if err != nil {
		errs = append(errs, fmt.Errorf("algorithm: %w", err))
	} else if alg != signing.None && c.HMACKey == "" {
		errs = append(errs, errors.NewValidation("hmac_key",
			"required for "+alg+" (or set CAPTURE_HMAC_KEY)"))
	}

	if len(c.Sensors) == 0 {
		errs = append(errs, errors.NewMissingField("sensors"))
	}
	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if err := validation.ValidateSensorName(s.Name); err != nil {
			errs = append(errs, fmt.Errorf("sensors[%d].name: %w", i, err))
		}
		if err := validation.ValidateUnits(s.Units); err != nil {
			errs = append(errs, fmt.Errorf("sensors[%d].units: %w", i, err))
		}
		if seen[s.Name] {
			errs = append(errs, errors.NewInvalidValue(fmt.Sprintf("sensors[%d].name", i), s.Name, "duplicate"))
		}
		seen[s.Name] = true
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	var errs []error

	geo := (&Config{Storage: *c}).Geometry()
	if err := geo.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.SyncMode {
	case "async", "fsync":
	default:
		errs = append(errs, errors.NewInvalidValue("sync_mode", c.SyncMode, "must be async or fsync"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the recorder configuration.
func (c *RecorderConfig) Validate() error {
	var errs []error

	if c.SettleDelay < 0 {
		errs = append(errs, errors.NewInvalidValue("settle_delay", c.SettleDelay, "must not be negative"))
	}
	if c.EraseSafetyFactor < 1 {
		errs = append(errs, errors.NewInvalidValue("erase_safety_factor", c.EraseSafetyFactor, "must be at least 1"))
	}
	if c.ScratchSize < 64 {
		errs = append(errs, errors.NewInvalidValue("scratch_size", c.ScratchSize, "must be at least 64 bytes"))
	}
	if c.FixedTimestamp < 0 {
		errs = append(errs, errors.NewInvalidValue("fixed_timestamp", c.FixedTimestamp, "must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Config) validateSensor() error {
	switch c.Sensor.Driver {
	case "synthetic":
		return nil
	case "snmp":
		snmp := c.SNMPDriver()
		if err := snmp.Validate(); err != nil {
			return fmt.Errorf("snmp: %w", err)
		}
		if len(snmp.OIDs) != len(c.Sampling.Sensors) {
			return errors.NewValidation("snmp.oids",
				fmt.Sprintf("%d OIDs for %d sensors", len(snmp.OIDs), len(c.Sampling.Sensors)))
		}
		return nil
	default:
		return errors.NewInvalidValue("driver", c.Sensor.Driver, "must be synthetic or snmp")
	}
}

// Validate checks the output configuration.
func (c *OutputConfig) Validate() error {
	for _, name := range ExportCompressions {
		if strings.EqualFold(c.ExportCompression, name) {
			return nil
		}
	}
	return errors.NewInvalidValue("export_compression", c.ExportCompression,
		"must be one of "+strings.Join(ExportCompressions, ", "))
}

// Validate checks the metrics configuration.
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Listen == "" {
		return errors.NewMissingField("listen")
	}
	return nil
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return errors.NewInvalidValue("level", c.Level, "must be debug, info, warn or error")
	}
}
