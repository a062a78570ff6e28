package flash

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/xtxerr/capture/internal/errors"
)

// File is a NOR flash emulation persisted in an image file, so a
// recording survives the process and can be sealed or inspected later.
//
// Image format: a flat byte image of Capacity bytes. There is no header;
// the geometry comes from configuration.
type File struct {
	mu sync.Mutex

	path string
	f    *os.File
	geo  Geometry
	opts FileOptions

	stats Stats
}

// FileOptions configures the image file.
type FileOptions struct {
	// SyncMode controls durability after each erase or write.
	// "async" - leave it to the OS
	// "fsync" - fsync after every operation
	SyncMode string
}

// DefaultFileOptions returns default image options.
func DefaultFileOptions() FileOptions {
	return FileOptions{SyncMode: "async"}
}

// OpenFile opens or creates the image at path. A new image is sized to
// the capacity and reads as zero until erased.
func OpenFile(path string, geo Geometry, opts FileOptions) (*File, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	if opts.SyncMode == "" {
		opts.SyncMode = DefaultFileOptions().SyncMode
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create image dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}
	switch {
	case info.Size() == 0:
		if err := f.Truncate(int64(geo.Capacity)); err != nil {
			f.Close()
			return nil, fmt.Errorf("size image: %w", err)
		}
	case info.Size() != int64(geo.Capacity):
		f.Close()
		return nil, errors.NewInvalidValue("image size", info.Size(),
			fmt.Sprintf("does not match capacity %d", geo.Capacity))
	}

	return &File{
		path: path,
		f:    f,
		geo:  geo,
		opts: opts,
	}, nil
}

func (d *File) BlockSize() uint32        { return d.geo.BlockSize }
func (d *File) BlockEraseTimeMs() uint32 { return d.geo.BlockEraseTimeMs }
func (d *File) Capacity() uint32         { return d.geo.Capacity }

// Path returns the image path.
func (d *File) Path() string { return d.path }

// Erase implements Device.
func (d *File) Erase(offset, length uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if length == 0 {
		return 0, nil
	}
	if err := d.geo.checkRange(offset, int(length)); err != nil {
		d.stats.Errors++
		return 0, errors.Mark(errors.ErrStorageEraseFailed, err)
	}

	start, end := d.geo.blockSpan(offset, length)
	block := bytes.Repeat([]byte{ErasedByte}, int(d.geo.BlockSize))
	for pos := start; pos < end; pos += uint64(d.geo.BlockSize) {
		if _, err := d.f.WriteAt(block, int64(pos)); err != nil {
			d.stats.Errors++
			return uint32(pos - start), errors.Mark(errors.ErrStorageEraseFailed, err)
		}
		d.stats.BlocksErased++
	}

	if err := d.syncUnlocked(); err != nil {
		d.stats.Errors++
		return 0, errors.Mark(errors.ErrStorageEraseFailed, err)
	}

	d.stats.EraseOps++
	return length, nil
}

// Write implements Device.
func (d *File) Write(buf []byte, offset uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.geo.checkRange(offset, len(buf)); err != nil {
		d.stats.Errors++
		return 0, errors.Mark(errors.ErrStorageWriteFailed, err)
	}

	current := make([]byte, len(buf))
	if _, err := d.f.ReadAt(current, int64(offset)); err != nil && err != io.EOF {
		d.stats.Errors++
		return 0, errors.Mark(errors.ErrStorageWriteFailed, err)
	}
	if err := checkProgram(current, buf, offset); err != nil {
		d.stats.Errors++
		return 0, errors.Mark(errors.ErrStorageWriteFailed, err)
	}
	for i := range buf {
		current[i] &= buf[i]
	}

	n, err := d.f.WriteAt(current, int64(offset))
	if err != nil {
		d.stats.Errors++
		return uint32(n), errors.Mark(errors.ErrStorageWriteFailed, err)
	}
	if err := d.syncUnlocked(); err != nil {
		d.stats.Errors++
		return uint32(n), errors.Mark(errors.ErrStorageWriteFailed, err)
	}

	d.stats.WriteOps++
	d.stats.BytesWritten += int64(n)
	return uint32(n), nil
}

// ReadAt implements io.ReaderAt.
func (d *File) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.ReadAt(p, off)
}

// Sync flushes the image to disk.
func (d *File) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Sync()
}

func (d *File) syncUnlocked() error {
	if d.opts.SyncMode == "fsync" {
		return d.f.Sync()
	}
	return nil
}

// Close closes the image file.
func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Stats returns device statistics.
func (d *File) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
