package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/capture/internal/storage/aggregate"
)

// Reader reads rows of type T from a Parquet file.
type Reader[T any] struct {
	file   *os.File
	reader *parquet.GenericReader[T]
	path   string
}

// SampleReader reads sample rows.
type SampleReader = Reader[SampleRow]

// NewSampleReader opens a sample Parquet file.
func NewSampleReader(path string) (*SampleReader, error) {
	return newReader[SampleRow](path)
}

// SummaryReader reads summary rows.
type SummaryReader = Reader[SummaryRow]

// NewSummaryReader opens a summary Parquet file.
func NewSummaryReader(path string) (*SummaryReader, error) {
	return newReader[SummaryRow](path)
}

func newReader[T any](path string) (*Reader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[T](f)

	return &Reader[T]{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n rows. It returns io.EOF once no rows remain.
func (r *Reader[T]) Read(n int) ([]T, error) {
	rows := make([]T, n)
	count, err := r.reader.Read(rows)
	if err != nil && !(errors.Is(err, io.EOF) && count > 0) {
		return nil, err
	}
	return rows[:count], nil
}

// ReadAll reads every remaining row.
func (r *Reader[T]) ReadAll() ([]T, error) {
	rows := make([]T, 0, r.reader.NumRows())
	buf := make([]T, 4096)

	for {
		n, err := r.reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// NumRows returns the total number of rows in the file.
func (r *Reader[T]) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader[T]) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader[T]) Path() string {
	return r.path
}

// ReadSummary reads a summary file back into aggregate results.
func ReadSummary(path string) ([]aggregate.Result, error) {
	r, err := NewSummaryReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	results := make([]aggregate.Result, len(rows))
	for i := range rows {
		results[i] = RowToSummary(&rows[i])
	}
	return results, nil
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
	NumCols int
}

// GetFileInfo returns information about a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	return &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: pf.NumRows(),
		NumCols: len(pf.Schema().Fields()),
	}, nil
}
