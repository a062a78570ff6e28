package recorder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xtxerr/capture/config"
	"github.com/xtxerr/capture/internal/clock"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/metrics"
	"github.com/xtxerr/capture/internal/storage/flash"
)

// wordSize is the program granularity of the storage medium.
const wordSize = config.DefaultWordSize

// WordWriter accumulates arbitrary writes into 4-byte words and programs
// each word as soon as it is complete. Addresses are relative to the end
// of the header.
//
// WordWriter is the encoder's sink. It is not safe for concurrent use;
// the session serializes access.
type WordWriter struct {
	dev     flash.Device
	clock   clock.Clock
	metrics *metrics.Recorder
	log     *slog.Logger

	word         [wordSize]byte
	cursor       uint32
	headerOffset uint32

	// err is the first commit failure; later writes keep reporting it.
	err   error
	stats WriterStats
}

// WriterStats counts writer activity for one session.
type WriterStats struct {
	BytesAccepted  uint64
	WordsCommitted uint64
}

func newWordWriter(dev flash.Device, clk clock.Clock, m *metrics.Recorder, log *slog.Logger) *WordWriter {
	return &WordWriter{
		dev:     dev,
		clock:   clk,
		metrics: m,
		log:     log,
	}
}

// Write buffers p and commits every word it completes. It always
// accepts the whole of p; a failed commit is reported alongside.
func (w *WordWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		w.word[w.cursor&(wordSize-1)] = b
		w.cursor++
		if w.cursor&(wordSize-1) == 0 {
			w.commitWord(w.cursor - wordSize)
		}
	}
	w.stats.BytesAccepted += uint64(len(p))
	return len(p), w.err
}

// Seek does not move; the writer only appends.
func (w *WordWriter) Seek(offset int64, whence int) (int64, error) {
	return 0, nil
}

// Time returns the header timestamp.
func (w *WordWriter) Time() time.Time {
	return w.clock.Now()
}

// Cursor returns the number of payload bytes accepted.
func (w *WordWriter) Cursor() uint32 { return w.cursor }

// Buffered returns the number of accepted bytes not yet committed.
func (w *WordWriter) Buffered() uint32 { return w.cursor & (wordSize - 1) }

// Stats returns the writer counters.
func (w *WordWriter) Stats() WriterStats { return w.stats }

// Err returns the first commit failure, if any.
func (w *WordWriter) Err() error { return w.err }

// reset starts a new payload right after a header of headerOffset bytes.
func (w *WordWriter) reset(headerOffset uint32) {
	w.word = [wordSize]byte{}
	w.cursor = 0
	w.headerOffset = headerOffset
	w.err = nil
	w.stats = WriterStats{}
}

// commitWord programs the buffered word at payload offset rel.
func (w *WordWriter) commitWord(rel uint32) {
	if w.err != nil {
		return
	}

	addr := rel + w.headerOffset
	n, err := w.dev.Write(w.word[:], addr)
	if err == nil && n != wordSize {
		err = fmt.Errorf("wrote %d of %d bytes at %d", n, wordSize, addr)
	}
	if err != nil {
		w.err = errors.Mark(errors.ErrStorageWriteFailed, err)
		w.log.Error("word commit failed", "addr", addr, "error", err)
		return
	}

	w.stats.WordsCommitted++
	w.metrics.WordCommitted()
	w.log.Debug("word committed", "addr", addr, "word", fmt.Sprintf("%02x", w.word[:]))
}
