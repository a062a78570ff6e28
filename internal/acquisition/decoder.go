package acquisition

import (
	"bytes"
	"fmt"

	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/signing"
)

// Decode decodes the recording at the start of data and returns it with
// its encoded length. Anything after the message, such as word padding
// or the terminator word, is ignored.
func Decode(data []byte) (*Message, int, error) {
	var m Message
	rest, err := decMode.UnmarshalFirst(data, &m)
	if err != nil {
		return nil, 0, errors.Mark(errors.ErrMalformedRecording, err)
	}
	if m.Protected.Ver != Version {
		return nil, 0, errors.Mark(errors.ErrMalformedRecording,
			fmt.Errorf("unsupported version %q", m.Protected.Ver))
	}
	if len(m.Signature) != 2*signing.Size {
		return nil, 0, errors.Mark(errors.ErrMalformedRecording,
			fmt.Errorf("signature field has %d characters", len(m.Signature)))
	}
	return &m, len(data) - len(rest), nil
}

// MessageLength returns the encoded length of the recording at the start
// of data.
func MessageLength(data []byte) (int, error) {
	_, n, err := Decode(data)
	return n, err
}

// Sealed reports whether the signature field holds a digest rather than
// the placeholder.
func (m *Message) Sealed() bool {
	return m.Signature != placeholder
}

// Samples returns the number of sample groups.
func (m *Message) Samples() int {
	return len(m.Payload.Values)
}

// signatureOffset returns the offset of the hex digest inside data.
func signatureOffset(data []byte) (int, error) {
	i := bytes.Index(data, signatureKey)
	if i < 0 {
		return 0, errors.Mark(errors.ErrMalformedRecording, fmt.Errorf("signature field not found"))
	}
	off := i + len(signatureKey)
	if off+2*signing.Size > len(data) {
		return 0, errors.Mark(errors.ErrMalformedRecording, fmt.Errorf("signature field truncated"))
	}
	return off, nil
}

// PatchSignature writes the hex digest of h into the signature field of
// the encoded message in place.
func PatchSignature(data []byte, h signing.Hash) error {
	off, err := signatureOffset(data)
	if err != nil {
		return err
	}
	copy(data[off:], h.String())
	return nil
}

// clearSignature restores the placeholder in a copy of the message.
func clearSignature(data []byte) ([]byte, error) {
	out := bytes.Clone(data)
	off, err := signatureOffset(out)
	if err != nil {
		return nil, err
	}
	copy(out[off:], placeholder)
	return out, nil
}
