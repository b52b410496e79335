package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/vk/groupsched/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

var (
	logFormats = []string{"text", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

const usageText = `
groupsched - A grouped, traffic-adaptive TSCH slot scheduler node.

Usage:
  groupsched [options] [CONFIG_PATH...]

Arguments:
  CONFIG_PATH
    Path to a single .hcl file or a directory containing .hcl files.
    Blocks from every file are merged; each block may appear only once.

Options:
`

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	fs := flag.NewFlagSet("groupsched", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, usageText)
		fs.PrintDefaults()
	}

	var (
		configPath  string
		shortPath   string
		cfg         app.Config
		logFormat   string
		logLevel    string
		maintainDur = fs.Duration("maintain-interval", 0, "Override the scheduler's maintain_interval, e.g. '10s'. 0 keeps the configured value.")
	)
	fs.StringVar(&configPath, "config", "", "Path to the configuration file or directory.")
	fs.StringVar(&shortPath, "c", "", "Path to the configuration file or directory (shorthand).")
	fs.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	fs.StringVar(&logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	fs.StringVar(&logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.StringVar(&cfg.TelemetryURL, "telemetry", "", "socket.io URL to publish schedule events to. Overrides the telemetry block.")
	fs.StringVar(&cfg.ReportPath, "report", "", "Write the simulation report as JSON to this file.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err.Error())
	}

	switch {
	case configPath != "":
		cfg.ConfigPaths = append(cfg.ConfigPaths, configPath)
	case shortPath != "":
		cfg.ConfigPaths = append(cfg.ConfigPaths, shortPath)
	}
	cfg.ConfigPaths = append(cfg.ConfigPaths, fs.Args()...)
	if len(cfg.ConfigPaths) == 0 {
		fs.Usage()
		return nil, true, nil
	}

	cfg.LogFormat = strings.ToLower(logFormat)
	if !slices.Contains(logFormats, cfg.LogFormat) {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}
	cfg.LogLevel = strings.ToLower(logLevel)
	if !slices.Contains(logLevels, cfg.LogLevel) {
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	if *maintainDur < 0 {
		return nil, false, usageError("invalid maintain-interval: must not be negative")
	}
	cfg.MaintainInterval = *maintainDur

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}
	slog.Debug("CLI arguments parsed.", "paths", config.ConfigPaths)
	return config, false, nil
}
