// capture records signed sensor sample streams into emulated flash and
// verifies, inspects and exports the recordings.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/xtxerr/capture/internal/config"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name    string
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = []command{
	{"record", "run one recording session", cmdRecord},
	{"verify", "check the signature of a recording", cmdVerify},
	{"inspect", "print the header and per-sensor statistics", cmdInspect},
	{"export", "export a recording to Parquet", cmdExport},
}

// usageError is a command-line mistake; it exits with CodeUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.CodeUsage
	}

	name, rest := args[0], args[1:]
	switch name {
	case "-h", "--help", "help":
		printUsage(stdout)
		return errors.CodeOK
	case "--version", "version":
		fmt.Fprintf(stdout, "capture %s\n", Version)
		return errors.CodeOK
	}

	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}

		err := cmd.run(rest, stdout)
		var usage usageError
		switch {
		case err == nil, errors.Is(err, pflag.ErrHelp):
			return errors.CodeOK
		case errors.As(err, &usage):
			fmt.Fprintf(stderr, "capture %s: %v\n", name, err)
			return errors.CodeUsage
		}

		code := errors.ErrorToCode(err)
		logging.Error("command failed",
			"command", name,
			"code", errors.CodeName(code),
			"error", err)
		fmt.Fprintf(stderr, "capture %s: %v\n", name, err)
		return code
	}

	fmt.Fprintf(stderr, "capture: unknown command %q\n", name)
	printUsage(stderr)
	return errors.CodeUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: capture <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'capture <command> --help' for the flags of a command.")
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("capture "+name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageError{err}
	}
	return nil
}

// readConfig reads path over the defaults without validating. An empty
// path yields the defaults.
func readConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.ErrInvalidConfig, fmt.Errorf("read config file: %w", err))
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, errors.Mark(errors.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// loadConfig reads path, applies the environment and then override, and
// validates the result. Logging is initialized from the outcome.
func loadConfig(path string, override func(*config.Config)) (*config.Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.Getenv)
	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	return cfg, nil
}
