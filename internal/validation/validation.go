// Package validation provides input validation for recording metadata.
//
// Labels become file names and sensor names become column names
// downstream, so both are restricted to a conservative character set.
package validation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/xtxerr/capture/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowColons  bool
}

// LabelRules returns the rules for recording labels.
func LabelRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// SensorNameRules returns the rules for sensor axis names.
func SensorNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// DeviceNameRules returns the rules for device names, which are often
// MAC addresses.
func DeviceNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		AllowColons:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return invalidName("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return invalidName("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return invalidName("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return invalidName("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return invalidName("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return invalidName("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return invalidName("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func invalidName(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errors.ErrInvalidName)
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case ':':
		return rules.AllowColons
	}
	return false
}

// ValidateLabel validates a recording label.
func ValidateLabel(label string) error {
	return ValidateName(label, LabelRules())
}

// ValidateSensorName validates a sensor axis name.
func ValidateSensorName(name string) error {
	return ValidateName(name, SensorNameRules())
}

// ValidateDeviceName validates the device name reported in the header.
func ValidateDeviceName(name string) error {
	return ValidateName(name, DeviceNameRules())
}

// ValidateUnits validates a units string such as "m/s2" or "°C".
func ValidateUnits(units string) error {
	if len(units) > 32 {
		return invalidName("units too long: maximum 32 characters allowed")
	}
	for i, r := range units {
		if !unicode.IsPrint(r) {
			return invalidName("units cannot contain non-printable characters at position %d", i)
		}
	}
	return nil
}

// =============================================================================
// OID Validation
// =============================================================================

// NormalizeOID returns oid with a leading dot, the form gosnmp reports.
func NormalizeOID(oid string) string {
	if strings.HasPrefix(oid, ".") {
		return oid
	}
	return "." + oid
}

// ValidateOID validates a numeric SNMP object identifier, with or
// without a leading dot.
func ValidateOID(oid string) error {
	trimmed := strings.TrimPrefix(oid, ".")
	if trimmed == "" {
		return fmt.Errorf("OID cannot be empty: %w", errors.ErrInvalidOID)
	}

	arcs := strings.Split(trimmed, ".")
	if len(arcs) < 2 {
		return fmt.Errorf("OID %q needs at least two arcs: %w", oid, errors.ErrInvalidOID)
	}
	for i, arc := range arcs {
		if arc == "" {
			return fmt.Errorf("OID %q has an empty arc at position %d: %w", oid, i, errors.ErrInvalidOID)
		}
		if _, err := strconv.ParseUint(arc, 10, 32); err != nil {
			return fmt.Errorf("OID %q arc %q is not a number: %w", oid, arc, errors.ErrInvalidOID)
		}
	}
	if first := arcs[0]; first != "0" && first != "1" && first != "2" {
		return fmt.Errorf("OID %q must start with 0, 1 or 2: %w", oid, errors.ErrInvalidOID)
	}
	return nil
}
