package acquisition

import (
	"bytes"
	"testing"
	"time"

	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/signing"
)

type bufferSink struct {
	bytes.Buffer
	now   time.Time
	seeks int
}

func (s *bufferSink) Seek(int64, int) (int64, error) {
	s.seeks++
	return 0, nil
}

func (s *bufferSink) Time() time.Time { return s.now }

var testInfo = PayloadInfo{
	DeviceName: "00:11:22:33:44:55",
	DeviceType: "CAPTURE_EMULATOR",
	IntervalMs: 100,
	LengthMs:   500,
	Label:      "idle",
	Sensors:    []Sensor{{Name: "accX", Units: "m/s2"}, {Name: "accY", Units: "m/s2"}},
}

// record encodes rows, appends the break byte, and returns the message
// bytes with the hash the streaming signer produced.
func record(t *testing.T, alg, key string, rows [][]float32) ([]byte, signing.Hash) {
	t.Helper()

	signer, err := signing.New(alg, key)
	if err != nil {
		t.Fatalf("signing.New: %v", err)
	}

	sink := &bufferSink{now: time.Unix(4564867, 0)}
	enc := NewEncoder(sink, signer)

	var header bytes.Buffer
	if err := enc.WriteHeader(&header, testInfo); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if sink.seeks != 1 {
		t.Errorf("expected one rewind, got %d", sink.seeks)
	}
	for _, row := range rows {
		if err := enc.AddSamples(row); err != nil {
			t.Fatalf("AddSamples: %v", err)
		}
	}
	if enc.Rows() != len(rows) {
		t.Errorf("Rows() = %d, want %d", enc.Rows(), len(rows))
	}

	if err := signer.Update([]byte{BreakByte}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	sum, err := signer.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	data := append(header.Bytes(), sink.Bytes()...)
	data = append(data, BreakByte)
	return data, sum
}

func TestEncodeHeader(t *testing.T) {
	hdr, err := EncodeHeader(testInfo, signing.HS256, time.Unix(4564867, 0))
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	if hdr[0] != 0xA3 {
		t.Errorf("first byte = %#x, want map(3)", hdr[0])
	}
	if last := hdr[len(hdr)-1]; last != 0x9F {
		t.Errorf("last byte = %#x, want open array", last)
	}
	if !bytes.Contains(hdr, []byte(placeholder)) {
		t.Error("header lacks the signature placeholder")
	}
	if _, err := signatureOffset(hdr); err != nil {
		t.Errorf("signatureOffset: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	rows := [][]float32{{0.5, -1.25}, {3, 4}, {1e-3, 1e6}}

	for _, alg := range signing.Algorithms() {
		t.Run(alg, func(t *testing.T) {
			data, sum := record(t, alg, "secret", rows)

			// Word padding and the terminator follow the message on the device.
			stored := append(bytes.Clone(data), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)

			m, n, err := Decode(stored)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if n != len(data) {
				t.Errorf("message length = %d, want %d", n, len(data))
			}
			if m.Protected.Alg != alg || m.Protected.Iat != 4564867 {
				t.Errorf("unexpected protected header %+v", m.Protected)
			}
			if m.Payload.IntervalMs != 100 || len(m.Payload.Sensors) != 2 {
				t.Errorf("unexpected payload metadata %+v", m.Payload)
			}
			if m.Samples() != len(rows) {
				t.Fatalf("decoded %d rows, want %d", m.Samples(), len(rows))
			}
			for i, row := range rows {
				for j, v := range row {
					if got := m.Payload.Values[i][j]; got != v {
						t.Errorf("values[%d][%d] = %v, want %v", i, j, got, v)
					}
				}
			}
			if m.Sealed() {
				t.Error("unsealed recording reports sealed")
			}

			if _, err := VerifyHash(stored, "secret", sum); err != nil {
				t.Errorf("VerifyHash: %v", err)
			}

			sealed, err := Seal(stored, sum)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			if len(sealed) != len(data) {
				t.Errorf("sealed length = %d, want %d", len(sealed), len(data))
			}
			if _, err := Verify(sealed, "secret"); err != nil {
				t.Errorf("Verify: %v", err)
			}
		})
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	data, sum := record(t, signing.HS256, "secret", [][]float32{{1, 2}, {3, 4}})

	sealed, err := Seal(data, sum)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := Verify(sealed, "other"); !errors.Is(err, errors.ErrVerifyFailed) {
		t.Errorf("wrong key: expected ErrVerifyFailed, got %v", err)
	}

	// Flip a bit inside the last float of the last row.
	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-2] ^= 0x01
	if _, err := Verify(tampered, "secret"); !errors.Is(err, errors.ErrVerifyFailed) {
		t.Errorf("tampered payload: expected ErrVerifyFailed, got %v", err)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"erased", bytes.Repeat([]byte{0xFF}, 16)},
		{"truncated header", func() []byte {
			hdr, _ := EncodeHeader(testInfo, signing.HS256, time.Unix(0, 0))
			return hdr
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Decode(tt.data); !errors.Is(err, errors.ErrMalformedRecording) {
				t.Errorf("expected ErrMalformedRecording, got %v", err)
			}
		})
	}
}
