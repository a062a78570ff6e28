package acquisition

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/signing"
)

// Sink is the byte destination the encoder streams into.
//
// Seek is only ever asked to rewind to the start; a sink that cannot
// seek reports success without moving. Time supplies the header
// timestamp.
type Sink interface {
	io.Writer
	Seek(offset int64, whence int) (int64, error)
	Time() time.Time
}

// Encoder streams a recording: the header once, then one row per sample
// group. Every byte it emits is also fed to the signer.
type Encoder struct {
	sink   Sink
	signer signing.Signer
	rows   int
}

// NewEncoder creates an encoder that writes rows to sink and signs
// everything it emits with signer.
func NewEncoder(sink Sink, signer signing.Signer) *Encoder {
	return &Encoder{sink: sink, signer: signer}
}

// WriteHeader encodes the header for info into scratch and signs it.
//
// The header goes to scratch rather than the sink because its length is
// only known once encoding is complete.
func (e *Encoder) WriteHeader(scratch io.Writer, info PayloadInfo) error {
	if _, err := e.sink.Seek(0, io.SeekStart); err != nil {
		return errors.Mark(errors.ErrHeaderEncodeFailed, err)
	}

	hdr, err := EncodeHeader(info, e.signer.Algorithm(), e.sink.Time())
	if err != nil {
		return err
	}

	if _, err := scratch.Write(hdr); err != nil {
		return err
	}
	if err := e.signer.Update(hdr); err != nil {
		return errors.Mark(errors.ErrSignature, err)
	}
	return nil
}

// AddSamples appends one sample group as a definite-length array of
// float32 values.
func (e *Encoder) AddSamples(values []float32) error {
	if values == nil {
		values = []float32{}
	}

	row, err := encMode.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}

	if _, err := e.sink.Write(row); err != nil {
		return err
	}
	if err := e.signer.Update(row); err != nil {
		return errors.Mark(errors.ErrSignature, err)
	}

	e.rows++
	return nil
}

// Rows returns the number of sample groups added.
func (e *Encoder) Rows() int { return e.rows }

// EncodeHeader returns the header bytes: the outer map, the protected
// header, the placeholder signature, and the payload metadata, ending
// with the opening byte of the indefinite-length values array.
func EncodeHeader(info PayloadInfo, alg string, iat time.Time) ([]byte, error) {
	var buf bytes.Buffer

	// map(3)
	buf.WriteByte(0xA3)

	if err := appendPair(&buf, "protected", Protected{
		Ver: Version,
		Alg: alg,
		Iat: iat.Unix(),
	}); err != nil {
		return nil, err
	}
	if err := appendPair(&buf, "signature", placeholder); err != nil {
		return nil, err
	}

	if err := appendValue(&buf, "payload"); err != nil {
		return nil, err
	}

	sensors := info.Sensors
	if sensors == nil {
		sensors = []Sensor{}
	}

	// map(5), with values left open
	buf.WriteByte(0xA5)
	for _, kv := range []struct {
		key   string
		value any
	}{
		{"device_name", info.DeviceName},
		{"device_type", info.DeviceType},
		{"interval_ms", info.IntervalMs},
		{"sensors", sensors},
	} {
		if err := appendPair(&buf, kv.key, kv.value); err != nil {
			return nil, err
		}
	}
	if err := appendValue(&buf, "values"); err != nil {
		return nil, err
	}
	buf.WriteByte(0x9F)

	return buf.Bytes(), nil
}

func appendPair(buf *bytes.Buffer, key string, value any) error {
	if err := appendValue(buf, key); err != nil {
		return err
	}
	return appendValue(buf, value)
}

func appendValue(buf *bytes.Buffer, v any) error {
	b, err := encMode.Marshal(v)
	if err != nil {
		return errors.Mark(errors.ErrHeaderEncodeFailed, fmt.Errorf("encode %T: %w", v, err))
	}
	buf.Write(b)
	return nil
}

// signatureKey is the encoded "signature" key followed by the 64-byte
// text string head that precedes the hex digest.
var signatureKey = func() []byte {
	key, err := cbor.Marshal("signature")
	if err != nil {
		panic(err)
	}
	return append(key, 0x78, 2*signing.Size)
}()
