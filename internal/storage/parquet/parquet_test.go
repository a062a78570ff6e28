package parquet

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/capture/internal/acquisition"
	cerrors "github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/storage/aggregate"
)

func testMessage(groups int) *acquisition.Message {
	values := make([][]float32, groups)
	for i := range values {
		values[i] = []float32{float32(i), -float32(i), 0.5}
	}
	return &acquisition.Message{
		Protected: acquisition.Protected{Ver: acquisition.Version, Alg: "HS256", Iat: 4564867},
		Payload: acquisition.Payload{
			DeviceName: "00:11:22:33:44:55",
			DeviceType: "CAPTURE_EMULATOR",
			IntervalMs: 2.5,
			Sensors: []acquisition.Sensor{
				{Name: "accX", Units: "m/s2"},
				{Name: "accY", Units: "m/s2"},
				{Name: "accZ", Units: "m/s2"},
			},
			Values: values,
		},
	}
}

func TestSampleRows(t *testing.T) {
	rows := SampleRows(testMessage(4), "idle")

	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}

	r := rows[7] // group 2, accY
	if r.SampleIndex != 2 || r.Sensor != "accY" || r.Value != -2 {
		t.Errorf("unexpected row %+v", r)
	}
	if r.OffsetMs != 5 {
		t.Errorf("offset = %v, want 5", r.OffsetMs)
	}
	if r.TimestampMs != 4564867*1000+5 {
		t.Errorf("timestamp = %d, want %d", r.TimestampMs, 4564867*1000+5)
	}
	if r.Label != "idle" || r.Device != "00:11:22:33:44:55" || r.Units != "m/s2" {
		t.Errorf("unexpected identity %+v", r)
	}
}

func TestExportRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "idle.parquet")

	n, err := ExportRecording(path, testMessage(10), "idle", DefaultOptions())
	if err != nil {
		t.Fatalf("ExportRecording: %v", err)
	}
	if n != 30 {
		t.Errorf("expected 30 rows written, got %d", n)
	}

	r, err := NewSampleReader(path)
	if err != nil {
		t.Fatalf("NewSampleReader: %v", err)
	}
	defer r.Close()

	if r.NumRows() != 30 {
		t.Errorf("expected 30 rows in file, got %d", r.NumRows())
	}

	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 30 {
		t.Fatalf("expected 30 rows, got %d", len(rows))
	}

	want := SampleRows(testMessage(10), "idle")
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestExportRecording_Nil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nil.parquet")
	if _, err := ExportRecording(path, nil, "idle", DefaultOptions()); !cerrors.Is(err, cerrors.ErrMalformedRecording) {
		t.Errorf("expected ErrMalformedRecording, got %v", err)
	}
}

func TestRowGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.parquet")

	opts := DefaultOptions()
	opts.RowGroupSize = 7

	w, err := NewSampleWriter(path, opts)
	if err != nil {
		t.Fatalf("NewSampleWriter: %v", err)
	}

	rows := SampleRows(testMessage(100), "long")
	for len(rows) > 0 {
		batch := rows[:min(len(rows), 11)]
		if err := w.Write(batch); err != nil {
			t.Fatalf("Write: %v", err)
		}
		rows = rows[len(batch):]
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.RowCount() != 300 {
		t.Errorf("expected 300 rows, got %d", w.RowCount())
	}

	info, err := GetFileInfo(path)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if info.NumRows != 300 {
		t.Errorf("expected 300 rows, got %d", info.NumRows)
	}
	if info.NumCols != 8 {
		t.Errorf("expected 8 columns, got %d", info.NumCols)
	}
	if info.Size == 0 {
		t.Error("file should not be empty")
	}
}

func TestReadInBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batches.parquet")
	if _, err := ExportRecording(path, testMessage(5), "idle", DefaultOptions()); err != nil {
		t.Fatalf("ExportRecording: %v", err)
	}

	r, err := NewSampleReader(path)
	if err != nil {
		t.Fatalf("NewSampleReader: %v", err)
	}
	defer r.Close()

	total := 0
	for {
		rows, err := r.Read(4)
		total += len(rows)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if len(rows) == 0 {
			t.Fatal("Read returned no rows without io.EOF")
		}
	}
	if total != 15 {
		t.Errorf("expected 15 rows, got %d", total)
	}
}

func TestCompressionTypes(t *testing.T) {
	for _, name := range []string{"none", "snappy", "gzip", "zstd", "lz4", "brotli"} {
		t.Run(name, func(t *testing.T) {
			ct, err := ParseCompressionType(name)
			if err != nil {
				t.Fatalf("ParseCompressionType: %v", err)
			}
			if ct.String() != name {
				t.Errorf("String() = %q, want %q", ct.String(), name)
			}

			opts := DefaultOptions()
			opts.Compression = ct

			path := filepath.Join(t.TempDir(), "test.parquet")
			if _, err := ExportRecording(path, testMessage(20), "idle", opts); err != nil {
				t.Fatalf("ExportRecording: %v", err)
			}

			r, err := NewSampleReader(path)
			if err != nil {
				t.Fatalf("NewSampleReader: %v", err)
			}
			defer r.Close()

			rows, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if len(rows) != 60 {
				t.Errorf("expected 60 rows, got %d", len(rows))
			}
		})
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input    string
		expected CompressionType
		wantErr  bool
	}{
		{"snappy", CompressionSnappy, false},
		{"zstd", CompressionZstd, false},
		{"ZSTD", CompressionZstd, false},
		{"lz4", CompressionLZ4, false},
		{"gzip", CompressionGzip, false},
		{"brotli", CompressionBrotli, false},
		{"none", CompressionNone, false},
		{"", CompressionNone, false},
		{"rar", CompressionNone, true},
	}

	for _, tt := range tests {
		result, err := ParseCompressionType(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompressionType(%q): error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if err != nil && !cerrors.Is(err, cerrors.ErrInvalidConfig) {
			t.Errorf("ParseCompressionType(%q): expected ErrInvalidConfig, got %v", tt.input, err)
		}
		if result != tt.expected {
			t.Errorf("ParseCompressionType(%q): expected %d, got %d", tt.input, tt.expected, result)
		}
	}
}

func TestExportSummary(t *testing.T) {
	results, err := aggregate.Summarize(testMessage(50), aggregate.DefaultAccuracy)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	results[2].P50 = nil // accZ without percentiles
	results[2].P90, results[2].P95, results[2].P99 = nil, nil, nil

	path := filepath.Join(t.TempDir(), "summary.parquet")
	if err := ExportSummary(path, "idle", results, DefaultOptions()); err != nil {
		t.Fatalf("ExportSummary: %v", err)
	}

	back, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if len(back) != len(results) {
		t.Fatalf("expected %d results, got %d", len(results), len(back))
	}

	for i := range results {
		want, got := results[i], back[i]
		if got.Sensor != want.Sensor || got.Count != want.Count ||
			got.Min != want.Min || got.Max != want.Max || got.Avg != want.Avg {
			t.Errorf("result %d = %+v, want %+v", i, got, want)
		}
		if got.HasPercentiles() != want.HasPercentiles() {
			t.Errorf("result %d: percentiles %v, want %v", i, got.HasPercentiles(), want.HasPercentiles())
		}
		if want.HasPercentiles() && *got.P99 != *want.P99 {
			t.Errorf("result %d: p99 %v, want %v", i, *got.P99, *want.P99)
		}
	}
}

func TestEmptyWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	w, err := NewSampleWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSampleWriter: %v", err)
	}

	if err := w.Write(nil); err != nil {
		t.Errorf("nil write should succeed: %v", err)
	}
	if err := w.Write([]SampleRow{}); err != nil {
		t.Errorf("empty write should succeed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.RowCount() != 0 {
		t.Errorf("expected 0 rows, got %d", w.RowCount())
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("file should exist: %v", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	w, err := NewSampleWriter(filepath.Join(t.TempDir(), "closed.parquet"), DefaultOptions())
	if err != nil {
		t.Fatalf("NewSampleWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should succeed: %v", err)
	}
	if err := w.Write(SampleRows(testMessage(1), "x")); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}
