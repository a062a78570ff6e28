// Package signing provides the streaming signature used to seal recordings.
//
// A Signer is fed bytes in the order they are written to storage and
// produces a 32-byte keyed digest at the end. It never buffers the
// message, so a recording can be signed while it streams to flash.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"

	"github.com/xtxerr/capture/internal/errors"
)

// Algorithm names as they appear in the recording header.
const (
	HS256   = "HS256"
	BLAKE3  = "BLAKE3"
	BLAKE2b = "BLAKE2b-256"
	None    = "none"
)

// Size is the length of every digest in bytes.
const Size = 32

// blake3Context separates recording keys from any other use of the
// same key material.
const blake3Context = "capture 2025 recording signature"

// Hash is a finished signature.
type Hash [Size]byte

// String returns the lowercase hex form used in sealed headers.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// ParseHash parses a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse signature: %w", err)
	}
	if len(decoded) != Size {
		return h, fmt.Errorf("signature is %d bytes, want %d", len(decoded), Size)
	}
	copy(h[:], decoded)
	return h, nil
}

// Signer computes a signature incrementally.
type Signer interface {
	// Algorithm returns the header name of the algorithm.
	Algorithm() string

	// Update feeds p into the signature.
	Update(p []byte) error

	// Finish returns the signature. The signer cannot be updated afterwards.
	Finish() (Hash, error)
}

// Algorithms lists the supported algorithm names.
func Algorithms() []string {
	return []string{HS256, BLAKE3, BLAKE2b, None}
}

// Normalize maps a configured algorithm name to its canonical form.
func Normalize(alg string) (string, error) {
	for _, known := range Algorithms() {
		if strings.EqualFold(alg, known) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%q: %w", alg, errors.ErrUnsupportedAlgorithm)
}

// New initializes a signer for alg with key.
func New(alg, key string) (Signer, error) {
	name, err := Normalize(alg)
	if err != nil {
		return nil, err
	}

	var h hash.Hash
	switch name {
	case HS256:
		h = hmac.New(sha256.New, []byte(key))
	case BLAKE3:
		var derived [32]byte
		blake3.DeriveKey(blake3Context, []byte(key), derived[:])
		keyed, err := blake3.NewKeyed(derived[:])
		if err != nil {
			return nil, errors.Mark(errors.ErrSignature, err)
		}
		h = keyed
	case BLAKE2b:
		keyBytes := []byte(key)
		if len(keyBytes) > blake2b.Size {
			sum := blake2b.Sum256(keyBytes)
			keyBytes = sum[:]
		}
		keyed, err := blake2b.New256(keyBytes)
		if err != nil {
			return nil, errors.Mark(errors.ErrSignature, err)
		}
		h = keyed
	case None:
		return &noneSigner{}, nil
	}

	return &hashSigner{alg: name, h: h}, nil
}

// hashSigner adapts any hash.Hash with a 32-byte sum.
type hashSigner struct {
	alg      string
	h        hash.Hash
	finished bool
}

func (s *hashSigner) Algorithm() string { return s.alg }

func (s *hashSigner) Update(p []byte) error {
	if s.finished {
		return fmt.Errorf("update after finish: %w", errors.ErrSignature)
	}
	s.h.Write(p)
	return nil
}

func (s *hashSigner) Finish() (Hash, error) {
	var out Hash
	if s.finished {
		return out, fmt.Errorf("finish called twice: %w", errors.ErrSignature)
	}
	s.finished = true

	sum := s.h.Sum(nil)
	if len(sum) != Size {
		return out, fmt.Errorf("%s produced %d bytes: %w", s.alg, len(sum), errors.ErrSignature)
	}
	copy(out[:], sum)
	return out, nil
}

// noneSigner produces an all-zero signature for unsigned recordings.
type noneSigner struct{ finished bool }

func (s *noneSigner) Algorithm() string { return None }

func (s *noneSigner) Update([]byte) error {
	if s.finished {
		return fmt.Errorf("update after finish: %w", errors.ErrSignature)
	}
	return nil
}

func (s *noneSigner) Finish() (Hash, error) {
	if s.finished {
		return Hash{}, fmt.Errorf("finish called twice: %w", errors.ErrSignature)
	}
	s.finished = true
	return Hash{}, nil
}

// Sum signs data in one call.
func Sum(alg, key string, data ...[]byte) (Hash, error) {
	s, err := New(alg, key)
	if err != nil {
		return Hash{}, err
	}
	for _, p := range data {
		if err := s.Update(p); err != nil {
			return Hash{}, err
		}
	}
	return s.Finish()
}

// Equal compares two signatures in constant time.
func Equal(a, b Hash) bool {
	return hmac.Equal(a[:], b[:])
}
