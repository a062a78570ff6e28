package recorder

import (
	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/signing"
)

const erasedWord = 0xFF

// finalize pads and commits the last partial word, appends the
// terminator word and finishes the signature. It returns the padded
// payload length.
func (s *session) finalize() (uint32, signing.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()

	w := s.writer
	payload := w.flush()
	w.terminate(payload)

	if err := w.Err(); err != nil {
		return 0, signing.Hash{}, err
	}

	// The first 0xFF after the last row closes the values array.
	if err := s.signer.Update([]byte{acquisition.BreakByte}); err != nil {
		return 0, signing.Hash{}, errors.Mark(errors.ErrSignature, err)
	}
	h, err := s.signer.Finish()
	if err != nil {
		return 0, signing.Hash{}, errors.Mark(errors.ErrSignature, err)
	}
	return payload, h, nil
}

// flush pads a partial word with 0xFF, commits it, and returns the
// payload length rounded up to whole words.
func (w *WordWriter) flush() uint32 {
	aligned := w.cursor &^ (wordSize - 1)

	buffered := w.Buffered()
	if buffered == 0 {
		return aligned
	}
	for i := buffered; i < wordSize; i++ {
		w.word[i] = erasedWord
	}
	w.commitWord(aligned)
	return aligned + wordSize
}

// terminate commits the end-of-stream word at payload offset rel and
// marks the writer finalized.
func (w *WordWriter) terminate(rel uint32) {
	w.word = [wordSize]byte{erasedWord, erasedWord, erasedWord, erasedWord}
	w.commitWord(rel)
	w.cursor++
}
