// Package flash implements the block device the recorder streams into.
//
// Both implementations emulate NOR flash: erase works on whole blocks and
// sets every byte to 0xFF, and programming can only clear bits. Writing a
// value that would need a 0 bit to become 1 fails with ErrNotErased, so a
// caller that forgets to erase is caught instead of silently corrupting
// the recording.
package flash

import (
	"fmt"

	"github.com/xtxerr/capture/internal/errors"
)

// ErasedByte is the value of every byte after an erase.
const ErasedByte = 0xFF

// Device is the block device capability consumed by the recorder.
type Device interface {
	// BlockSize is the erase granularity in bytes.
	BlockSize() uint32

	// BlockEraseTimeMs is the time the medium needs to erase one block.
	BlockEraseTimeMs() uint32

	// Capacity is the addressable size in bytes.
	Capacity() uint32

	// Erase erases [offset, offset+length), rounded out to whole blocks.
	// It returns length on success. Any other count is a failure.
	Erase(offset, length uint32) (uint32, error)

	// Write programs buf at offset and returns the number of bytes written.
	Write(buf []byte, offset uint32) (uint32, error)

	// ReadAt reads back programmed data.
	ReadAt(p []byte, off int64) (int, error)
}

// Stats holds device statistics.
type Stats struct {
	EraseOps     int64
	BlocksErased int64
	WriteOps     int64
	BytesWritten int64
	Errors       int64
}

// Geometry describes an emulated device.
type Geometry struct {
	Capacity         uint32
	BlockSize        uint32
	BlockEraseTimeMs uint32
}

// Validate checks that the geometry describes a usable device.
func (g Geometry) Validate() error {
	if g.BlockSize == 0 {
		return errors.NewValidation("block_size", "must be positive")
	}
	if g.Capacity == 0 {
		return errors.NewValidation("capacity", "must be positive")
	}
	if g.Capacity%g.BlockSize != 0 {
		return errors.NewInvalidValue("capacity", g.Capacity,
			fmt.Sprintf("must be a multiple of block_size %d", g.BlockSize))
	}
	return nil
}

// blockSpan returns the block-aligned range covering [offset, offset+length).
func (g Geometry) blockSpan(offset, length uint32) (start, end uint64) {
	bs := uint64(g.BlockSize)
	start = uint64(offset) / bs * bs
	end = (uint64(offset) + uint64(length) + bs - 1) / bs * bs
	return start, end
}

// checkRange reports whether [offset, offset+length) fits the device.
func (g Geometry) checkRange(offset uint32, length int) error {
	if uint64(offset)+uint64(length) > uint64(g.Capacity) {
		return fmt.Errorf("offset %d length %d capacity %d: %w",
			offset, length, g.Capacity, errors.ErrOutOfRange)
	}
	return nil
}

// checkProgram verifies that programming src over current only clears bits.
func checkProgram(current, src []byte, offset uint32) error {
	for i := range src {
		if current[i]&src[i] != src[i] {
			return fmt.Errorf("byte %d has 0x%02x, cannot program 0x%02x: %w",
				uint64(offset)+uint64(i), current[i], src[i], errors.ErrNotErased)
		}
	}
	return nil
}
