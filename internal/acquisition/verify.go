package acquisition

import (
	"fmt"

	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/signing"
)

// Digest recomputes the signature of the recording at the start of data
// using the algorithm named in its protected header. The signature field
// is treated as the placeholder regardless of its content.
func Digest(data []byte, key string) (*Message, signing.Hash, error) {
	m, n, err := Decode(data)
	if err != nil {
		return nil, signing.Hash{}, err
	}

	unsigned, err := clearSignature(data[:n])
	if err != nil {
		return nil, signing.Hash{}, err
	}

	sum, err := signing.Sum(m.Protected.Alg, key, unsigned)
	if err != nil {
		return nil, signing.Hash{}, err
	}
	return m, sum, nil
}

// Verify checks a sealed recording against its embedded signature.
func Verify(data []byte, key string) (*Message, error) {
	m, sum, err := Digest(data, key)
	if err != nil {
		return nil, err
	}

	stored, err := signing.ParseHash(m.Signature)
	if err != nil {
		return nil, errors.Mark(errors.ErrMalformedRecording, err)
	}
	if !signing.Equal(stored, sum) {
		return m, errors.Mark(errors.ErrVerifyFailed,
			fmt.Errorf("%s signature mismatch", m.Protected.Alg))
	}
	return m, nil
}

// VerifyHash checks a recording against a separately reported hash,
// such as the one returned by the recorder for an unsealed image.
func VerifyHash(data []byte, key string, want signing.Hash) (*Message, error) {
	m, sum, err := Digest(data, key)
	if err != nil {
		return nil, err
	}
	if !signing.Equal(want, sum) {
		return m, errors.Mark(errors.ErrVerifyFailed,
			fmt.Errorf("%s hash mismatch", m.Protected.Alg))
	}
	return m, nil
}

// Seal patches the signature of a recording into a copy of its bytes,
// trimmed to the message length.
func Seal(data []byte, h signing.Hash) ([]byte, error) {
	n, err := MessageLength(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, data[:n])
	if err := PatchSignature(out, h); err != nil {
		return nil, err
	}
	return out, nil
}
