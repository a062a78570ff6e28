package acquisition

import (
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/xtxerr/capture/internal/signing"
)

// Version is the protected header version.
const Version = "v1"

// BreakByte closes the indefinite-length values array.
const BreakByte = 0xFF

// Sensor describes one axis of a sample group.
type Sensor struct {
	Name  string `cbor:"name"`
	Units string `cbor:"units"`
}

// PayloadInfo is the read-only session metadata supplied by the caller.
type PayloadInfo struct {
	DeviceName string
	DeviceType string
	IntervalMs float64
	LengthMs   uint32
	Label      string
	Sensors    []Sensor
	Algorithm  string
	HMACKey    string
}

// SampleSize returns the byte size of one sample group delivered as
// little-endian float32 values.
func (p PayloadInfo) SampleSize() uint32 {
	return uint32(len(p.Sensors)) * 4
}

// Protected is the protected header.
type Protected struct {
	Ver string `cbor:"ver"`
	Alg string `cbor:"alg"`
	Iat int64  `cbor:"iat"`
}

// Payload is the decoded payload section.
type Payload struct {
	DeviceName string      `cbor:"device_name"`
	DeviceType string      `cbor:"device_type"`
	IntervalMs float64     `cbor:"interval_ms"`
	Sensors    []Sensor    `cbor:"sensors"`
	Values     [][]float32 `cbor:"values"`
}

// Message is a decoded recording.
type Message struct {
	Protected Protected `cbor:"protected"`
	Signature string    `cbor:"signature"`
	Payload   Payload   `cbor:"payload"`
}

// placeholder is the unsealed signature value.
var placeholder = strings.Repeat("0", 2*signing.Size)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{}.EncMode()
	if err != nil {
		panic("acquisition: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Long recordings exceed the default element limit.
		MaxArrayElements: 2147483647,
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("acquisition: CBOR decoder initialization failed: " + err.Error())
	}
}
