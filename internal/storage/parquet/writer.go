package parquet

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/storage/aggregate"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the number of rows after which a row group is
	// flushed. Zero leaves grouping to the writer.
	RowGroupSize int

	// PageSize is the page buffer size in bytes.
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
	CompressionBrotli
)

var compressionNames = map[string]CompressionType{
	"none":   CompressionNone,
	"snappy": CompressionSnappy,
	"gzip":   CompressionGzip,
	"zstd":   CompressionZstd,
	"lz4":    CompressionLZ4,
	"brotli": CompressionBrotli,
}

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionNone,
		RowGroupSize: 100000,
		PageSize:     1024 * 1024, // 1MB
	}
}

// ParseCompressionType parses a compression name. The empty string means
// none.
func ParseCompressionType(s string) (CompressionType, error) {
	if s == "" {
		return CompressionNone, nil
	}
	ct, ok := compressionNames[strings.ToLower(s)]
	if !ok {
		return CompressionNone, errors.NewInvalidValue("compression", s,
			"must be one of none, snappy, gzip, zstd, lz4, brotli")
	}
	return ct, nil
}

// String returns the compression name.
func (ct CompressionType) String() string {
	for name, v := range compressionNames {
		if v == ct {
			return name
		}
	}
	return fmt.Sprintf("compression(%d)", int(ct))
}

// codec returns the parquet-go compression codec.
func codec(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionGzip:
		return &parquet.Gzip
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionBrotli:
		return &parquet.Brotli
	default:
		return &parquet.Uncompressed
	}
}

// SampleRow is one sensor value of one sample group.
type SampleRow struct {
	Label       string  `parquet:"label,dict"`
	Device      string  `parquet:"device,dict"`
	SampleIndex int64   `parquet:"sample_index"`
	OffsetMs    float64 `parquet:"offset_ms"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Sensor      string  `parquet:"sensor,dict"`
	Units       string  `parquet:"units,dict"`
	Value       float32 `parquet:"value"`
}

// SummaryRow holds the statistics of one sensor.
type SummaryRow struct {
	Label       string  `parquet:"label,dict"`
	Sensor      string  `parquet:"sensor,dict"`
	Units       string  `parquet:"units,dict"`
	Count       int64   `parquet:"count"`
	Skipped     int64   `parquet:"skipped"`
	Sum         float64 `parquet:"sum"`
	Min         float64 `parquet:"min"`
	Max         float64 `parquet:"max"`
	Avg         float64 `parquet:"avg"`
	Percentiles bool    `parquet:"percentiles"`
	P50         float64 `parquet:"p50"`
	P90         float64 `parquet:"p90"`
	P95         float64 `parquet:"p95"`
	P99         float64 `parquet:"p99"`
	FirstIndex  int64   `parquet:"first_index"`
	LastIndex   int64   `parquet:"last_index"`
}

// SampleRows flattens m into one row per sensor value. Timestamps count
// from the protected header's issue time in interval steps.
func SampleRows(m *acquisition.Message, label string) []SampleRow {
	sensors := m.Payload.Sensors
	interval := m.Payload.IntervalMs
	baseMs := m.Protected.Iat * 1000

	rows := make([]SampleRow, 0, len(m.Payload.Values)*len(sensors))
	for idx, values := range m.Payload.Values {
		offset := float64(idx) * interval
		for axis, v := range values {
			row := SampleRow{
				Label:       label,
				Device:      m.Payload.DeviceName,
				SampleIndex: int64(idx),
				OffsetMs:    offset,
				TimestampMs: baseMs + int64(math.Round(offset)),
				Value:       v,
			}
			if axis < len(sensors) {
				row.Sensor = sensors[axis].Name
				row.Units = sensors[axis].Units
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// SummaryToRow converts an aggregate result to a SummaryRow.
func SummaryToRow(label string, r *aggregate.Result) SummaryRow {
	row := SummaryRow{
		Label:      label,
		Sensor:     r.Sensor,
		Units:      r.Units,
		Count:      r.Count,
		Skipped:    r.Skipped,
		Sum:        r.Sum,
		Min:        r.Min,
		Max:        r.Max,
		Avg:        r.Avg,
		FirstIndex: r.FirstIndex,
		LastIndex:  r.LastIndex,
	}

	if r.HasPercentiles() {
		row.Percentiles = true
		row.P50 = *r.P50
		row.P90 = *r.P90
		row.P95 = *r.P95
		row.P99 = *r.P99
	}

	return row
}

// RowToSummary converts a SummaryRow back to an aggregate result.
func RowToSummary(r *SummaryRow) aggregate.Result {
	result := aggregate.Result{
		Sensor:     r.Sensor,
		Units:      r.Units,
		Count:      r.Count,
		Skipped:    r.Skipped,
		Sum:        r.Sum,
		Min:        r.Min,
		Max:        r.Max,
		Avg:        r.Avg,
		FirstIndex: r.FirstIndex,
		LastIndex:  r.LastIndex,
	}

	if r.Percentiles {
		result.SetPercentiles(r.P50, r.P90, r.P95, r.P99)
	}

	return result
}

// ExportRecording writes m to path as sample rows and returns the number
// of rows written.
func ExportRecording(path string, m *acquisition.Message, label string, opts Options) (int64, error) {
	if m == nil {
		return 0, errors.ErrMalformedRecording
	}

	w, err := NewSampleWriter(path, opts)
	if err != nil {
		return 0, err
	}

	if err := w.Write(SampleRows(m, label)); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.RowCount(), nil
}

// ExportSummary writes one row per aggregate result to path.
func ExportSummary(path, label string, results []aggregate.Result, opts Options) error {
	w, err := NewSummaryWriter(path, opts)
	if err != nil {
		return err
	}

	rows := make([]SummaryRow, len(results))
	for i := range results {
		rows[i] = SummaryToRow(label, &results[i])
	}

	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Writer writes rows of type T to a Parquet file.
type Writer[T any] struct {
	mu           sync.Mutex
	path         string
	file         *os.File
	writer       *parquet.GenericWriter[T]
	rowGroupSize int
	pending      int
	rowCount     int64
	closed       bool
}

// SampleWriter writes sample rows.
type SampleWriter = Writer[SampleRow]

// SummaryWriter writes summary rows.
type SummaryWriter = Writer[SummaryRow]

// NewSampleWriter creates a new sample Parquet writer.
func NewSampleWriter(path string, opts Options) (*SampleWriter, error) {
	return newWriter[SampleRow](path, opts)
}

// NewSummaryWriter creates a new summary Parquet writer.
func NewSummaryWriter(path string, opts Options) (*SummaryWriter, error) {
	return newWriter[SummaryRow](path, opts)
}

func newWriter[T any](path string, opts Options) (*Writer[T], error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(codec(opts.Compression)),
	}
	if opts.PageSize > 0 {
		writerOpts = append(writerOpts, parquet.PageBufferSize(opts.PageSize))
	}

	return &Writer[T]{
		path:         path,
		file:         f,
		writer:       parquet.NewGenericWriter[T](f, writerOpts...),
		rowGroupSize: opts.RowGroupSize,
	}, nil
}

// Write appends rows to the file.
func (w *Writer[T]) Write(rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	for len(rows) > 0 {
		batch := rows
		if w.rowGroupSize > 0 && w.pending+len(batch) > w.rowGroupSize {
			batch = rows[:w.rowGroupSize-w.pending]
		}

		n, err := w.writer.Write(batch)
		w.rowCount += int64(n)
		w.pending += n
		if err != nil {
			return fmt.Errorf("write rows: %w", err)
		}

		if w.rowGroupSize > 0 && w.pending >= w.rowGroupSize {
			if err := w.writer.Flush(); err != nil {
				return fmt.Errorf("flush row group: %w", err)
			}
			w.pending = 0
		}
		rows = rows[len(batch):]
	}
	return nil
}

// Close closes the writer.
func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer[T]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer[T]) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
