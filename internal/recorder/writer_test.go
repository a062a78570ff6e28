package recorder

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/xtxerr/capture/internal/clock"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/logging"
	"github.com/xtxerr/capture/internal/signing"
	"github.com/xtxerr/capture/internal/storage/flash"
)

var testGeometry = flash.Geometry{Capacity: 64 * 1024, BlockSize: 256, BlockEraseTimeMs: 1}

func erasedMemory(t *testing.T) *flash.Memory {
	t.Helper()

	mem, err := flash.NewMemory(testGeometry)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if _, err := mem.Erase(0, testGeometry.Capacity); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	return mem
}

func readBack(t *testing.T, dev flash.Device, off, n uint32) []byte {
	t.Helper()

	buf := make([]byte, n)
	if _, err := dev.ReadAt(buf, int64(off)); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	return buf
}

func TestWordWriter_SingleByteWrites(t *testing.T) {
	const headerOffset = 3

	for n := 0; n <= 13; n++ {
		t.Run(fmt.Sprintf("%d bytes", n), func(t *testing.T) {
			mem := erasedMemory(t)
			w := newWordWriter(mem, clock.FixedUnix(0), nil, logging.Component("test"))
			w.reset(headerOffset)

			for i := 0; i < n; i++ {
				written, err := w.Write([]byte{byte(i + 1)})
				if err != nil || written != 1 {
					t.Fatalf("Write = %d, %v", written, err)
				}
			}

			if got := w.Stats().WordsCommitted; got != uint64(n/4) {
				t.Errorf("committed %d words, want %d", got, n/4)
			}
			if got := w.Buffered(); got != uint32(n%4) {
				t.Errorf("buffered %d bytes, want %d", got, n%4)
			}
			if got := mem.Stats().WriteOps; got != int64(n/4) {
				t.Errorf("device saw %d writes, want %d", got, n/4)
			}

			committed := (n / 4) * 4
			want := make([]byte, committed)
			for i := range want {
				want[i] = byte(i + 1)
			}
			if got := readBack(t, mem, headerOffset, uint32(committed)); !bytes.Equal(got, want) {
				t.Errorf("stored %x, want %x", got, want)
			}
		})
	}
}

func TestWordWriter_AcceptsWholeInput(t *testing.T) {
	mem := erasedMemory(t)
	w := newWordWriter(mem, clock.FixedUnix(0), nil, logging.Component("test"))
	w.reset(0)

	for _, size := range []int{7, 1, 12, 3} {
		n, err := w.Write(make([]byte, size))
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != size {
			t.Errorf("Write returned %d, want %d", n, size)
		}
	}
	if w.Cursor() != 23 {
		t.Errorf("cursor = %d, want 23", w.Cursor())
	}
	if w.Stats().BytesAccepted != 23 {
		t.Errorf("accepted = %d, want 23", w.Stats().BytesAccepted)
	}
}

func TestWordWriter_CommitFailureIsSticky(t *testing.T) {
	// Never erased: programming 0xFF over zeros must fail.
	mem, err := flash.NewMemory(testGeometry)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	w := newWordWriter(mem, clock.FixedUnix(0), nil, logging.Component("test"))
	w.reset(0)

	n, err := w.Write(bytes.Repeat([]byte{0xFF}, 4))
	if n != 4 {
		t.Errorf("Write returned %d, want 4", n)
	}
	if !errors.Is(err, errors.ErrStorageWriteFailed) || !errors.Is(err, errors.ErrNotErased) {
		t.Fatalf("expected storage write failure, got %v", err)
	}

	if _, err := w.Write([]byte{0}); !errors.Is(err, errors.ErrStorageWriteFailed) {
		t.Errorf("expected the failure to persist, got %v", err)
	}
}

func TestWordWriter_SeekAndTime(t *testing.T) {
	w := newWordWriter(erasedMemory(t), clock.FixedUnix(4564867), nil, logging.Component("test"))

	if off, err := w.Seek(10, 0); off != 0 || err != nil {
		t.Errorf("Seek = %d, %v; want 0, nil", off, err)
	}
	if got := w.Time().Unix(); got != 4564867 {
		t.Errorf("Time = %d, want 4564867", got)
	}
}

func TestHeaderLength(t *testing.T) {
	const size = 64

	tests := []struct {
		name    string
		content []byte
		want    uint32
		wantErr error
	}{
		{"single byte", []byte{0x9F}, 1, nil},
		{"short header", bytes.Repeat([]byte{0xA5}, 10), 10, nil},
		{"interior zeros", []byte{0xA3, 0x00, 0x00, 0x9F}, 4, nil},
		{"almost full", bytes.Repeat([]byte{1}, size-1), size - 1, nil},
		{"full", bytes.Repeat([]byte{1}, size), size, nil},
		{"all zero", nil, 0, errors.ErrHeaderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, size)
			copy(buf, tt.content)

			got, err := headerLength(buf)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("headerLength = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := headerLength(nil); !errors.Is(err, errors.ErrHeaderNotFound) {
		t.Errorf("empty buffer: expected ErrHeaderNotFound, got %v", err)
	}
}

func TestScratchOverflow(t *testing.T) {
	sc := newScratch(8)

	if _, err := sc.Write([]byte("12345")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := sc.Write([]byte("6789")); !errors.Is(err, errors.ErrHeaderOverflow) {
		t.Errorf("expected ErrHeaderOverflow, got %v", err)
	}
}

func TestFinalize_PadsAndTerminates(t *testing.T) {
	const headerOffset = 5

	for n := 0; n <= 9; n++ {
		t.Run(fmt.Sprintf("%d payload bytes", n), func(t *testing.T) {
			mem := erasedMemory(t)
			signer, err := signing.New(signing.HS256, "key")
			if err != nil {
				t.Fatalf("signing.New: %v", err)
			}

			w := newWordWriter(mem, clock.FixedUnix(0), nil, logging.Component("test"))
			w.reset(headerOffset)
			s := &session{writer: w, signer: signer, done: make(chan struct{})}

			// Zero bytes stand out against erased storage.
			payload := make([]byte, n)
			w.Write(payload)
			signer.Update(payload)

			padded, hash, err := s.finalize()
			if err != nil {
				t.Fatalf("finalize: %v", err)
			}

			wantPadded := uint32((n + 3) / 4 * 4)
			if padded != wantPadded {
				t.Errorf("payload length = %d, want %d", padded, wantPadded)
			}

			stored := readBack(t, mem, headerOffset, padded+4)
			if !bytes.Equal(stored[:n], payload) {
				t.Errorf("payload bytes %x, want %x", stored[:n], payload)
			}
			for i := n; i < len(stored); i++ {
				if stored[i] != 0xFF {
					t.Errorf("byte %d after payload = %#x, want 0xFF", i, stored[i])
				}
			}

			want, _ := signing.Sum(signing.HS256, "key", payload, []byte{0xFF})
			if hash != want {
				t.Errorf("signature %s, want %s", hash, want)
			}

			if w.Cursor() != uint32(n)+1 {
				t.Errorf("cursor = %d, want %d", w.Cursor(), n+1)
			}
			select {
			case <-s.done:
			default:
				t.Error("finalize should close the session")
			}
		})
	}
}

func TestDecodeSamples(t *testing.T) {
	values := []float32{1.5, -2, 0}
	raw := EncodeSamples(nil, values)

	// A trailing partial value is ignored.
	got := decodeSamples(append(raw, 0x01, 0x02))
	if len(got) != len(values) {
		t.Fatalf("decoded %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], values[i])
		}
	}
}
