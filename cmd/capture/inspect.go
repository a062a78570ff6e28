package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"

	defaults "github.com/xtxerr/capture/config"
	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/logging"
	"github.com/xtxerr/capture/internal/signing"
	"github.com/xtxerr/capture/internal/storage/aggregate"
	"github.com/xtxerr/capture/internal/storage/parquet"
)

// readRecording reads a sealed recording or a flash image.
func readRecording(fs *pflag.FlagSet) (string, []byte, error) {
	if fs.NArg() != 1 {
		return "", nil, usagef("expected exactly one recording file")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read recording: %w", err)
	}
	return path, data, nil
}

// labelOf derives a label from a recording path.
func labelOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func signingKey(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(defaults.EnvHMACKey)
}

func cmdVerify(args []string, stdout io.Writer) error {
	var key, hash string

	fs := newFlagSet("verify")
	fs.StringVar(&key, "key", "", "signing key (or CAPTURE_HMAC_KEY env)")
	fs.StringVar(&hash, "hash", "", "expected signature of an unsealed recording, hex")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	path, data, err := readRecording(fs)
	if err != nil {
		return err
	}
	log := logging.Component("verify").With("path", path)

	var m *acquisition.Message
	if hash != "" {
		want, err := signing.ParseHash(hash)
		if err != nil {
			return usagef("--hash: %v", err)
		}
		m, err = acquisition.VerifyHash(data, signingKey(key), want)
		if err != nil {
			return err
		}
	} else {
		if m, _, err := acquisition.Decode(data); err == nil && !m.Sealed() {
			return errors.Mark(errors.ErrVerifyFailed,
				fmt.Errorf("%s is unsealed; pass --hash with the recorded signature", path))
		}
		m, err = acquisition.Verify(data, signingKey(key))
		if err != nil {
			return err
		}
	}

	log.Debug("signature verified", "algorithm", m.Protected.Alg, "samples", m.Samples())
	fmt.Fprintf(stdout, "%s: OK (%s, %d samples)\n", path, m.Protected.Alg, m.Samples())
	return nil
}

func cmdInspect(args []string, stdout io.Writer) error {
	var (
		key       string
		accuracy  float64
		noSummary bool
	)

	fs := newFlagSet("inspect")
	fs.StringVar(&key, "key", "", "also verify a sealed recording with this key")
	fs.Float64Var(&accuracy, "accuracy", aggregate.DefaultAccuracy, "relative percentile accuracy; 0 disables percentiles")
	fs.BoolVar(&noSummary, "no-summary", false, "skip per-sensor statistics")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	path, data, err := readRecording(fs)
	if err != nil {
		return err
	}

	m, n, err := acquisition.Decode(data)
	if err != nil {
		return err
	}

	p := m.Payload
	fmt.Fprintf(stdout, "file:        %s (%d of %d bytes)\n", path, n, len(data))
	fmt.Fprintf(stdout, "version:     %s\n", m.Protected.Ver)
	fmt.Fprintf(stdout, "algorithm:   %s\n", m.Protected.Alg)
	fmt.Fprintf(stdout, "issued:      %s\n", time.Unix(m.Protected.Iat, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(stdout, "device:      %s (%s)\n", p.DeviceName, p.DeviceType)
	fmt.Fprintf(stdout, "interval:    %v ms\n", p.IntervalMs)
	fmt.Fprintf(stdout, "samples:     %d (%v ms)\n", m.Samples(), float64(m.Samples())*p.IntervalMs)

	switch {
	case !m.Sealed():
		fmt.Fprintf(stdout, "signature:   unsealed\n")
	case key != "" || os.Getenv(defaults.EnvHMACKey) != "":
		if _, err := acquisition.Verify(data, signingKey(key)); err != nil {
			fmt.Fprintf(stdout, "signature:   %s (INVALID)\n", m.Signature)
			return err
		}
		fmt.Fprintf(stdout, "signature:   %s (verified)\n", m.Signature)
	default:
		fmt.Fprintf(stdout, "signature:   %s\n", m.Signature)
	}

	if noSummary {
		return nil
	}

	results, err := aggregate.Summarize(m, accuracy)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	writeSummary(stdout, results)
	return nil
}

func writeSummary(w io.Writer, results []aggregate.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"sensor", "units", "count", "min", "max", "avg", "p50", "p90", "p95", "p99"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for i := range results {
		r := &results[i]
		row := []string{r.Sensor, r.Units, strconv.FormatInt(r.Count, 10)}
		if r.IsEmpty() {
			row = append(row, "-", "-", "-")
		} else {
			row = append(row, formatFloat(r.Min), formatFloat(r.Max), formatFloat(r.Avg))
		}
		for _, p := range []*float64{r.P50, r.P90, r.P95, r.P99} {
			if p == nil {
				row = append(row, "-")
				continue
			}
			row = append(row, formatFloat(*p))
		}
		table.Append(row)
	}
	table.Render()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func cmdExport(args []string, stdout io.Writer) error {
	var (
		out         string
		summaryPath string
		label       string
		compression string
		accuracy    float64
		rowGroup    int
	)

	fs := newFlagSet("export")
	fs.StringVarP(&out, "out", "o", "", "Parquet output path (default: <label>.parquet)")
	fs.StringVar(&summaryPath, "summary", "", "also write per-sensor statistics to this Parquet file")
	fs.StringVarP(&label, "label", "l", "", "label column value (default: file name)")
	fs.StringVar(&compression, "compression", "", "none, snappy, gzip, zstd, lz4 or brotli (default: output.export_compression)")
	fs.Float64Var(&accuracy, "accuracy", aggregate.DefaultAccuracy, "relative percentile accuracy for --summary")
	fs.IntVar(&rowGroup, "row-group-size", parquet.DefaultOptions().RowGroupSize, "rows per row group")
	cfgPath := fs.StringP("config", "c", "", "config file path")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if compression == "" && *cfgPath != "" {
		cfg, err := readConfig(*cfgPath)
		if err != nil {
			return err
		}
		compression = cfg.Output.ExportCompression
	}
	ct, err := parquet.ParseCompressionType(compression)
	if err != nil {
		return usagef("--compression: %v", err)
	}

	path, data, err := readRecording(fs)
	if err != nil {
		return err
	}

	if label == "" {
		label = labelOf(path)
	}
	if out == "" {
		out = label + ".parquet"
	}

	m, _, err := acquisition.Decode(data)
	if err != nil {
		return err
	}

	opts := parquet.DefaultOptions()
	opts.Compression = ct
	opts.RowGroupSize = rowGroup

	rows, err := parquet.ExportRecording(out, m, label, opts)
	if err != nil {
		return errors.Wrapf(err, "export %s", out)
	}
	fmt.Fprintf(stdout, "%s: %d rows (%s)\n", out, rows, ct)

	if summaryPath != "" {
		results, err := aggregate.Summarize(m, accuracy)
		if err != nil {
			return err
		}
		if err := parquet.ExportSummary(summaryPath, label, results, opts); err != nil {
			return errors.Wrapf(err, "export %s", summaryPath)
		}
		fmt.Fprintf(stdout, "%s: %d sensors\n", summaryPath, len(results))
	}
	return nil
}
