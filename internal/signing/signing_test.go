package signing

import (
	"testing"

	"github.com/xtxerr/capture/internal/errors"
)

func TestHS256KnownVector(t *testing.T) {
	got, err := Sum(HS256, "key", []byte("The quick brown fox jumps over the lazy dog"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	const want = "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got.String() != want {
		t.Errorf("HS256 = %s, want %s", got, want)
	}
}

func TestStreamingMatchesOneShot(t *testing.T) {
	message := []byte("header|payload words|\xff")

	for _, alg := range Algorithms() {
		t.Run(alg, func(t *testing.T) {
			s, err := New(alg, "secret-key")
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			for i := range message {
				if err := s.Update(message[i : i+1]); err != nil {
					t.Fatalf("Update: %v", err)
				}
			}
			streamed, err := s.Finish()
			if err != nil {
				t.Fatalf("Finish: %v", err)
			}

			oneShot, err := Sum(alg, "secret-key", message)
			if err != nil {
				t.Fatalf("Sum: %v", err)
			}
			if !Equal(streamed, oneShot) {
				t.Errorf("streamed %s != one-shot %s", streamed, oneShot)
			}
		})
	}
}

func TestKeyChangesSignature(t *testing.T) {
	for _, alg := range []string{HS256, BLAKE3, BLAKE2b} {
		t.Run(alg, func(t *testing.T) {
			a, _ := Sum(alg, "key-a", []byte("data"))
			b, _ := Sum(alg, "key-b", []byte("data"))
			if Equal(a, b) {
				t.Error("different keys produced the same signature")
			}
		})
	}
}

func TestNoneIsZero(t *testing.T) {
	h, err := Sum("NONE", "ignored", []byte("data"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if h != (Hash{}) {
		t.Errorf("none signature = %s, want zeros", h)
	}
}

func TestFinishedSignerRejectsUse(t *testing.T) {
	s, err := New("hs256", "k")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Algorithm() != HS256 {
		t.Errorf("Algorithm() = %q, want %q", s.Algorithm(), HS256)
	}
	if _, err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if err := s.Update([]byte{0xff}); !errors.Is(err, errors.ErrSignature) {
		t.Errorf("expected ErrSignature on update after finish, got %v", err)
	}
	if _, err := s.Finish(); !errors.Is(err, errors.ErrSignature) {
		t.Errorf("expected ErrSignature on second finish, got %v", err)
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	if _, err := New("MD5", "k"); !errors.Is(err, errors.ErrUnsupportedAlgorithm) {
		t.Errorf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestParseHash(t *testing.T) {
	h, _ := Sum(BLAKE3, "k", []byte("x"))

	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != h {
		t.Error("parsed hash differs")
	}

	if _, err := ParseHash("abcd"); err == nil {
		t.Error("expected error for short hash")
	}
	if _, err := ParseHash("zz"); err == nil {
		t.Error("expected error for non-hex input")
	}
}
