// Package seal hands finished recordings over once the recorder is done
// with them.
package seal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/logging"
	"github.com/xtxerr/capture/internal/recorder"
)

// LogUploader reports the recording and leaves it on the device.
type LogUploader struct{}

// NewLogUploader creates a LogUploader.
func NewLogUploader() *LogUploader {
	return &LogUploader{}
}

// Upload implements recorder.Uploader.
func (u *LogUploader) Upload(ctx context.Context, rec recorder.Recording) error {
	sealLogger(ctx, rec.Label).Info("not uploading, recording left on device",
		"from", 0,
		"to", rec.StoredLength,
		"signature", rec.Signature.String())
	return nil
}

// FileSealer reads a recording back from the device, embeds its
// signature and writes it to <dir>/<label>.cbor.
type FileSealer struct {
	dev io.ReaderAt
	dir string
}

// NewFileSealer creates a FileSealer writing into dir.
func NewFileSealer(dev io.ReaderAt, dir string) *FileSealer {
	return &FileSealer{
		dev: dev,
		dir: dir,
	}
}

// sealLogger logs with the session values in ctx, adding the label when
// the caller has not attached one.
func sealLogger(ctx context.Context, label string) *slog.Logger {
	if !logging.HasLabel(ctx) {
		ctx = logging.ContextWithLabel(ctx, label)
	}
	return logging.WithContext(ctx).With("component", "seal")
}

// Path returns the file a recording with label is sealed to.
func (s *FileSealer) Path(label string) string {
	return filepath.Join(s.dir, label+".cbor")
}

// Upload implements recorder.Uploader.
func (s *FileSealer) Upload(ctx context.Context, rec recorder.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, rec.StoredLength)
	if _, err := s.dev.ReadAt(stored, 0); err != nil && err != io.EOF {
		return fmt.Errorf("reading recording back: %w", err)
	}

	sealed, err := acquisition.Seal(stored, rec.Signature)
	if err != nil {
		return err
	}

	path := s.Path(rec.Label)
	if err := writeFileAtomic(path, sealed); err != nil {
		return err
	}

	sealLogger(ctx, rec.Label).Info("recording sealed",
		"path", path,
		"bytes", len(sealed),
		"algorithm", rec.Algorithm)
	return nil
}

// writeFileAtomic writes data to a temporary file next to path and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temporary recording file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary recording file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary recording file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary recording file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming recording file: %w", err)
	}
	return nil
}
