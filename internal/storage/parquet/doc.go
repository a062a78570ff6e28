// Package parquet exports decoded recordings to Parquet files for analysis.
//
// The package provides:
//   - ExportRecording, one SampleRow per (sample group, sensor) pair
//   - ExportSummary, one SummaryRow per sensor from aggregate results
//   - SampleReader/SummaryReader to read the files back
//   - Support for none, snappy, gzip, zstd, lz4 and brotli compression
package parquet
