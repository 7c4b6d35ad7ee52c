package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/c360/barstreams/bars"
)

// Subcommands.
const (
	commandServe   = "serve"
	commandConvert = "convert"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	Command         string
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool

	// convert
	Input     string
	OutDir    string
	Output    string
	TimeZone  string
	Workers   int
	Overwrite bool
}

// parseFlags parses args (without the program name). A leading "serve" or
// "convert" selects the subcommand; serve is the default.
func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{Command: commandServe}
	if len(args) > 0 && (args[0] == commandServe || args[0] == commandConvert) {
		cfg.Command = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet(appName+" "+cfg.Command, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("BARSTREAMS_CONFIG", "configs/barstreams.yaml"),
		"Path to configuration file (env: BARSTREAMS_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("BARSTREAMS_CONFIG", "configs/barstreams.yaml"),
		"Path to configuration file (env: BARSTREAMS_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("BARSTREAMS_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: BARSTREAMS_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("BARSTREAMS_LOG_FORMAT", "json"),
		"Log format: json, text (env: BARSTREAMS_LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("BARSTREAMS_DEBUG", false),
		"Enable debug mode (env: BARSTREAMS_DEBUG)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("BARSTREAMS_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: BARSTREAMS_SHUTDOWN_TIMEOUT)")

	fs.StringVar(&cfg.Input, "input", getEnv("BARSTREAMS_INPUT", ""),
		"convert: CSV file, or directory of *.csv files (env: BARSTREAMS_INPUT)")
	fs.StringVar(&cfg.OutDir, "out", getEnv("BARSTREAMS_OUT", ""),
		"convert: artifact directory; failures go to <out>/failure (env: BARSTREAMS_OUT)")
	fs.StringVar(&cfg.Output, "output", getEnv("BARSTREAMS_OUTPUT", string(bars.OutputAll)),
		"convert: XML, JSON, DB or ALL (env: BARSTREAMS_OUTPUT)")
	fs.StringVar(&cfg.TimeZone, "tz", getEnv("BARSTREAMS_TZ", "Local"),
		"convert: zone used to render timestamps (env: BARSTREAMS_TZ)")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("BARSTREAMS_WORKERS", runtime.NumCPU()),
		"convert: batches converted concurrently (env: BARSTREAMS_WORKERS)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", getEnvBool("BARSTREAMS_OVERWRITE", false),
		"convert: replace existing artifacts (env: BARSTREAMS_OVERWRITE)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs, stderr)
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			cfg.ShowHelp = true
			return cfg, nil
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	switch cfg.Command {
	case commandServe:
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	case commandConvert:
		if cfg.Input == "" {
			return fmt.Errorf("-input is required")
		}
		if _, err := os.Stat(cfg.Input); err != nil {
			return fmt.Errorf("input not found: %s", cfg.Input)
		}
		if cfg.OutDir == "" {
			return fmt.Errorf("-out is required")
		}
		if _, err := bars.ParseOutput(cfg.Output); err != nil {
			return err
		}
		if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
			return fmt.Errorf("invalid time zone: %s", cfg.TimeZone)
		}
		if cfg.Workers < 1 {
			return fmt.Errorf("invalid workers: %d", cfg.Workers)
		}
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - Bitcoin price history to JSON and XML records

Usage:
  %s [serve] [options]
  %s convert -input <file|dir> -out <dir> [options]

Options:
`, appName, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run the configured components
  %s serve --config=/etc/barstreams/barstreams.yaml

  # Convert one export, JSON only
  %s convert -input bitstampUSD_1-min_data.csv -out ./records -output JSON

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
