// Package config provides configuration defaults for the capture application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via capture.yaml, environment variables,
// or command-line flags.
package config

import "time"

// =============================================================================
// Session Defaults
// =============================================================================

const (
	// DefaultSettleDelay is the minimum wait before sampling begins.
	// It masks flash block-erase latency. When the estimated erase time
	// is longer, the estimate becomes the effective delay.
	// Override via config: recorder.settle_delay
	DefaultSettleDelay = 2000 * time.Millisecond

	// DefaultEraseSafetyFactor over-reserves the payload part of the erase
	// extent to absorb alignment and jitter slack.
	// Override via config: recorder.erase_safety_factor
	DefaultEraseSafetyFactor = 2

	// DefaultScratchSize is the size of the header scratch buffer.
	// It must be larger than any header the encoder can produce. The erase
	// extent reserves this many bytes for the header.
	// Override via config: recorder.scratch_size
	DefaultScratchSize = 1024

	// DefaultFixedTimestamp is the deterministic header timestamp (seconds
	// since the epoch) used unless recorder.wall_clock is enabled.
	// Override via config: recorder.fixed_timestamp
	DefaultFixedTimestamp = 4564867
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultWordSize is the program granularity of the storage medium.
	DefaultWordSize = 4

	// DefaultBlockSize is the erase block size of the emulated flash.
	// Override via config: storage.block_size
	DefaultBlockSize = 4096

	// DefaultBlockEraseTimeMs is the time to erase one block.
	// Override via config: storage.block_erase_time_ms
	DefaultBlockEraseTimeMs = 90

	// DefaultCapacity is the size of the flash image.
	// Override via config: storage.capacity
	DefaultCapacity = 4 * 1024 * 1024

	// DefaultImagePath is the flash image file.
	// Override via config: storage.image_path
	DefaultImagePath = "capture.img"
)

// =============================================================================
// Sampling Defaults
// =============================================================================

const (
	// DefaultIntervalMs is the default sampling interval.
	// Override via config: sampling.interval_ms
	DefaultIntervalMs = 10.0

	// DefaultLengthMs is the default recording length.
	// Override via config: sampling.length_ms
	DefaultLengthMs = 1000

	// DefaultAlgorithm is the default signing algorithm.
	// Override via config: sampling.algorithm
	DefaultAlgorithm = "HS256"

	// DefaultDeviceType is reported in the recording header.
	// Override via config: device.type
	DefaultDeviceType = "CAPTURE_EMULATOR"
)

// =============================================================================
// SNMP Sensor Defaults
// =============================================================================

const (
	// DefaultSNMPTimeoutMs is the timeout for a single SNMP request.
	// Override via config: sensor.snmp.timeout_ms
	DefaultSNMPTimeoutMs = 5000

	// DefaultSNMPRetries is the number of retry attempts after timeout.
	// Override via config: sensor.snmp.retries
	DefaultSNMPRetries = 2

	// DefaultSNMPPort is the default agent port.
	DefaultSNMPPort = 161
)

// =============================================================================
// Output Defaults
// =============================================================================

const (
	// DefaultMetricsListen is the metrics endpoint address.
	// Override via config: metrics.listen
	DefaultMetricsListen = "127.0.0.1:9464"

	// EnvHMACKey overrides sampling.hmac_key.
	EnvHMACKey = "CAPTURE_HMAC_KEY"
)
