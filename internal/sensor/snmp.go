package sensor

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/capture/config"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/logging"
	"github.com/xtxerr/capture/internal/recorder"
	"github.com/xtxerr/capture/internal/validation"
)

// =============================================================================
// SNMP Configuration
// =============================================================================

// SNMPConfig holds the agent and the OIDs polled as axes, in order.
type SNMPConfig struct {
	Host string
	Port uint16
	OIDs []string

	// v2c
	Community string

	// v3
	SecurityName  string
	SecurityLevel string
	AuthProtocol  string
	AuthPassword  string
	PrivProtocol  string
	PrivPassword  string
	ContextName   string

	// Timing
	TimeoutMs uint32
	Retries   uint32
}

// Validate checks the configuration.
func (c *SNMPConfig) Validate() error {
	errs := errors.NewValidationErrors()

	if c.Host == "" {
		errs.AddMissing("sensor.snmp.host")
	}
	if len(c.OIDs) == 0 {
		errs.AddMissing("sensor.snmp.oids")
	}
	for _, oid := range c.OIDs {
		if err := validation.ValidateOID(oid); err != nil {
			errs.Add(err)
		}
	}

	isV3 := c.SecurityName != ""
	if !isV3 && c.Community == "" {
		errs.AddField("sensor.snmp.community",
			"SNMP v2c requires community string (refusing to use insecure default)")
	}

	return errs.Err()
}

// =============================================================================
// SNMP Driver
// =============================================================================

// getFunc performs one SNMP GET.
type getFunc func(oids []string) (*gosnmp.SnmpPacket, error)

// SNMP polls a set of numeric OIDs every interval and delivers them as
// one sample group. Failed polls are skipped.
type SNMP struct {
	cfg    SNMPConfig
	client *gosnmp.GoSNMP
	get    getFunc
	log    *slog.Logger

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	delivered atomic.Uint64
	skipped   atomic.Uint64
}

// NewSNMP creates an SNMP driver.
func NewSNMP(cfg SNMPConfig) (*SNMP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &SNMP{
		cfg:    cfg,
		client: newClient(&cfg),
		log:    logging.Component("sensor.snmp").With("host", cfg.Host),
		stop:   make(chan struct{}),
	}
	d.get = d.client.Get
	return d, nil
}

// Axes implements Driver.
func (d *SNMP) Axes() int { return len(d.cfg.OIDs) }

// Delivered returns the number of sample groups handed to the callback.
func (d *SNMP) Delivered() uint64 { return d.delivered.Load() }

// Skipped returns the number of failed polls.
func (d *SNMP) Skipped() uint64 { return d.skipped.Load() }

// Start implements Driver. It connects before returning so an unreachable
// agent fails the start.
func (d *SNMP) Start(onSamples func(raw []byte) bool, intervalMs float64) error {
	period, err := interval(intervalMs)
	if err != nil {
		return err
	}
	if !d.started.CompareAndSwap(false, true) {
		return fmt.Errorf("snmp driver already started")
	}

	if d.client != nil {
		if err := d.client.Connect(); err != nil {
			return fmt.Errorf("connect %s: %w", d.cfg.Host, err)
		}
	}

	d.log.Debug("starting", "oids", d.cfg.OIDs, "interval_ms", intervalMs)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.client != nil && d.client.Conn != nil {
			defer d.client.Conn.Close()
		}

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		buf := make([]byte, 0, 4*len(d.cfg.OIDs))
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
			}

			values, err := d.poll()
			if err != nil {
				d.skipped.Add(1)
				d.log.Warn("poll failed, sample skipped", "error", err)
				continue
			}

			buf = recorder.EncodeSamples(buf[:0], values)
			d.delivered.Add(1)
			if onSamples(buf) {
				d.log.Debug("stopped by recorder",
					"delivered", d.delivered.Load(),
					"skipped", d.skipped.Load())
				return
			}
		}
	}()
	return nil
}

// Stop implements Driver.
func (d *SNMP) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// poll reads every OID and returns the values in configuration order.
func (d *SNMP) poll() ([]float32, error) {
	pdu, err := d.get(d.cfg.OIDs)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}

	byOID := make(map[string]gosnmp.SnmpPDU, len(pdu.Variables))
	for _, v := range pdu.Variables {
		byOID[validation.NormalizeOID(v.Name)] = v
	}

	values := make([]float32, len(d.cfg.OIDs))
	for i, oid := range d.cfg.OIDs {
		v, ok := byOID[validation.NormalizeOID(oid)]
		if !ok {
			return nil, fmt.Errorf("%s: no variable returned", oid)
		}
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", oid, err)
		}
		values[i] = f
	}
	return values, nil
}

// toFloat converts a numeric SNMP variable to a sample value.
func toFloat(v gosnmp.SnmpPDU) (float32, error) {
	switch v.Type {
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.Uinteger32, gosnmp.TimeTicks:
		return float32(gosnmp.ToBigInt(v.Value).Uint64()), nil

	case gosnmp.Integer:
		return float32(gosnmp.ToBigInt(v.Value).Int64()), nil

	case gosnmp.OpaqueFloat:
		if f, ok := v.Value.(float32); ok {
			return f, nil
		}

	case gosnmp.OpaqueDouble:
		if f, ok := v.Value.(float64); ok {
			return float32(f), nil
		}

	case gosnmp.OctetString:
		// Some agents report sensor readings as decimal strings.
		if b, ok := v.Value.([]byte); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 32)
			if err != nil {
				return 0, fmt.Errorf("non-numeric string %q", b)
			}
			return float32(f), nil
		}

	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return 0, fmt.Errorf("OID not found")
	}

	return 0, fmt.Errorf("unsupported type: %v", v.Type)
}

// =============================================================================
// SNMP Client Creation
// =============================================================================

func newClient(cfg *SNMPConfig) *gosnmp.GoSNMP {
	port := cfg.Port
	if port == 0 {
		port = config.DefaultSNMPPort
	}

	timeout := cfg.TimeoutMs
	if timeout == 0 {
		timeout = config.DefaultSNMPTimeoutMs
	}

	retries := cfg.Retries
	if retries == 0 {
		retries = config.DefaultSNMPRetries
	}

	snmp := &gosnmp.GoSNMP{
		Target:  cfg.Host,
		Port:    port,
		Timeout: time.Duration(timeout) * time.Millisecond,
		Retries: int(retries),
		MaxOids: gosnmp.MaxOids,
	}

	// Configure version based on presence of security name
	if cfg.SecurityName != "" {
		snmp.Version = gosnmp.Version3
		snmp.SecurityModel = gosnmp.UserSecurityModel
		snmp.MsgFlags = msgFlags(cfg.SecurityLevel)
		snmp.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.SecurityName,
			AuthenticationProtocol:   authProtocol(cfg.AuthProtocol),
			AuthenticationPassphrase: cfg.AuthPassword,
			PrivacyProtocol:          privProtocol(cfg.PrivProtocol),
			PrivacyPassphrase:        cfg.PrivPassword,
		}
		if cfg.ContextName != "" {
			snmp.ContextName = cfg.ContextName
		}
	} else {
		snmp.Version = gosnmp.Version2c
		snmp.Community = cfg.Community
	}

	return snmp
}

// =============================================================================
// SNMPv3 Protocol Helpers
// =============================================================================

func msgFlags(level string) gosnmp.SnmpV3MsgFlags {
	switch level {
	case "authNoPriv":
		return gosnmp.AuthNoPriv
	case "authPriv":
		return gosnmp.AuthPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(protocol string) gosnmp.SnmpV3AuthProtocol {
	switch protocol {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(protocol string) gosnmp.SnmpV3PrivProtocol {
	switch protocol {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}
