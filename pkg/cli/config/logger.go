package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
	"github.com/secmon-lab/tollgate/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

// Logger configures the process wide logger. Request bodies are never
// logged, and credential fields are masked by the logging package.
type Logger struct {
	level      string
	format     string
	output     string
	quiet      bool
	stacktrace bool
}

func (x *Logger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "logging",
			Aliases:     []string{"l"},
			Sources:     cli.EnvVars("TOLLGATE_LOG_LEVEL"),
			Usage:       "Set log level [debug|info|warn|error]",
			Value:       "info",
			Destination: &x.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Category:    "logging",
			Aliases:     []string{"f"},
			Sources:     cli.EnvVars("TOLLGATE_LOG_FORMAT"),
			Usage:       "Set log format [console|json], detected from TERM when empty",
			Value:       "console",
			Destination: &x.format,
		},
		&cli.StringFlag{
			Name:        "log-output",
			Category:    "logging",
			Aliases:     []string{"o"},
			Sources:     cli.EnvVars("TOLLGATE_LOG_OUTPUT"),
			Usage:       "Set log output [stdout|stderr|<file path>]",
			Value:       "stdout",
			Destination: &x.output,
		},
		&cli.BoolFlag{
			Name:        "log-quiet",
			Category:    "logging",
			Aliases:     []string{"q"},
			Usage:       "Discard all log output",
			Sources:     cli.EnvVars("TOLLGATE_LOG_QUIET"),
			Destination: &x.quiet,
		},
		&cli.BoolFlag{
			Name:        "log-stacktrace",
			Category:    "logging",
			Usage:       "Print stacktraces of errors (console format only)",
			Sources:     cli.EnvVars("TOLLGATE_LOG_STACKTRACE"),
			Destination: &x.stacktrace,
			Value:       true,
		},
	}
}

func (x Logger) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("level", x.level),
		slog.String("format", x.format),
		slog.String("output", x.output),
		slog.Bool("quiet", x.quiet),
	)
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, goerr.Wrap(err, "invalid log level", goerr.V("level", s))
	}
	return level, nil
}

func parseLogFormat(s string) (logging.Format, error) {
	switch s {
	case "console":
		return logging.FormatConsole, nil
	case "json":
		return logging.FormatJSON, nil
	case "":
		term := os.Getenv("TERM")
		if strings.Contains(term, "color") || strings.Contains(term, "xterm") {
			return logging.FormatConsole, nil
		}
		return logging.FormatJSON, nil
	default:
		return 0, goerr.New("invalid log format", goerr.V("format", s))
	}
}

func openLogOutput(path string) (io.Writer, func(), error) {
	switch path {
	case "stdout", "-", "":
		return os.Stdout, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, func() {}, goerr.Wrap(err, "failed to open log file", goerr.V("path", path))
	}
	return f, func() { safe.Close(context.Background(), f) }, nil
}

// Configure installs the default logger. The returned closer is always
// callable, even when an error is returned.
func (x *Logger) Configure() (func(), error) {
	if x.quiet {
		logging.Quiet()
		return func() {}, nil
	}

	level, err := parseLogLevel(x.level)
	if err != nil {
		return func() {}, err
	}
	format, err := parseLogFormat(x.format)
	if err != nil {
		return func() {}, err
	}

	output, closer, err := openLogOutput(x.output)
	if err != nil {
		return closer, err
	}

	logging.SetDefault(logging.New(output, level, format, x.stacktrace))
	return closer, nil
}
