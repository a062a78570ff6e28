package flash

import (
	"io"
	"sync"

	"github.com/xtxerr/capture/internal/errors"
)

// Memory is an in-memory NOR flash emulation.
type Memory struct {
	mu    sync.Mutex
	geo   Geometry
	data  []byte
	stats Stats
}

// NewMemory creates an emulated device. The initial contents are zero,
// as if previously programmed, so the first recording must erase.
func NewMemory(geo Geometry) (*Memory, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	return &Memory{
		geo:  geo,
		data: make([]byte, geo.Capacity),
	}, nil
}

func (m *Memory) BlockSize() uint32        { return m.geo.BlockSize }
func (m *Memory) BlockEraseTimeMs() uint32 { return m.geo.BlockEraseTimeMs }
func (m *Memory) Capacity() uint32         { return m.geo.Capacity }

// Erase implements Device.
func (m *Memory) Erase(offset, length uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if length == 0 {
		return 0, nil
	}
	if err := m.geo.checkRange(offset, int(length)); err != nil {
		m.stats.Errors++
		return 0, errors.Mark(errors.ErrStorageEraseFailed, err)
	}

	start, end := m.geo.blockSpan(offset, length)
	for i := start; i < end; i++ {
		m.data[i] = ErasedByte
	}

	m.stats.EraseOps++
	m.stats.BlocksErased += int64((end - start) / uint64(m.geo.BlockSize))
	return length, nil
}

// Write implements Device.
func (m *Memory) Write(buf []byte, offset uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.geo.checkRange(offset, len(buf)); err != nil {
		m.stats.Errors++
		return 0, errors.Mark(errors.ErrStorageWriteFailed, err)
	}

	dst := m.data[offset : int(offset)+len(buf)]
	if err := checkProgram(dst, buf, offset); err != nil {
		m.stats.Errors++
		return 0, errors.Mark(errors.ErrStorageWriteFailed, err)
	}
	for i := range buf {
		dst[i] &= buf[i]
	}

	m.stats.WriteOps++
	m.stats.BytesWritten += int64(len(buf))
	return uint32(len(buf)), nil
}

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Stats returns device statistics.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
