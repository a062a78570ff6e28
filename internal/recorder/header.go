package recorder

import (
	"fmt"

	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/errors"
)

// scratch is a fixed-size zero-filled buffer the header is encoded into.
type scratch struct {
	buf []byte
	n   int
}

func newScratch(size int) *scratch {
	return &scratch{buf: make([]byte, size)}
}

func (s *scratch) Write(p []byte) (int, error) {
	if len(p) > len(s.buf)-s.n {
		return 0, errors.Mark(errors.ErrHeaderOverflow,
			fmt.Errorf("header exceeds %d byte scratch buffer", len(s.buf)))
	}
	copy(s.buf[s.n:], p)
	s.n += len(p)
	return len(p), nil
}

// headerLength returns the length of the header in buf: one past the
// last non-zero byte. A buffer with no non-zero byte holds no header.
func headerLength(buf []byte) (uint32, error) {
	for i := len(buf); i > 0; i-- {
		if buf[i-1] != 0 {
			return uint32(i), nil
		}
	}
	return 0, errors.ErrHeaderNotFound
}

// buildHeader encodes the header, programs it at offset 0 and points the
// writer at the first payload byte.
func (s *session) buildHeader(info acquisition.PayloadInfo, scratchSize int) error {
	sc := newScratch(scratchSize)

	if err := s.enc.WriteHeader(sc, info); err != nil {
		if errors.IsHeader(err) || errors.Is(err, errors.ErrSignature) {
			return err
		}
		return errors.Mark(errors.ErrHeaderEncodeFailed, err)
	}

	n, err := headerLength(sc.buf)
	if err != nil {
		return err
	}

	written, err := s.dev.Write(sc.buf[:n], 0)
	if err == nil && written != n {
		err = fmt.Errorf("wrote %d of %d header bytes", written, n)
	}
	if err != nil {
		return errors.Mark(errors.ErrHeaderWriteFailed, err)
	}

	s.headerOffset = n
	s.writer.reset(n)
	s.metrics.HeaderWritten(n)
	return nil
}
