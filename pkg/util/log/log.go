// Package log sets up the process-wide go-kit logger.
package log

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
)

// Logger is the process-wide logger. It discards everything until
// InitLogger is called.
var Logger = log.NewNopLogger()

// Supported values of Config.Format.
const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
	FormatEvent  = "event"
)

// Config configures the process-wide logger.
type Config struct {
	Level  dslog.Level `yaml:"level"`
	Format string      `yaml:"format"`
}

// RegisterFlags registers the log flags with f.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Level.RegisterFlags(f)
	f.StringVar(&c.Format, "log.format", FormatLogfmt, "Output log messages in the given format. Valid formats: [logfmt, json, event]. The event format delivers every log line to the event sink.")
}

// Validate validates the config.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatLogfmt, FormatJSON, FormatEvent:
		return nil
	default:
		return fmt.Errorf("unsupported log format %q", c.Format)
	}
}

// InitLogger builds a logger from cfg writing to w, and installs it as
// [Logger]. The event format delivers records to sink instead of w.
func InitLogger(cfg Config, w io.Writer, sink Sink) (log.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	var logger log.Logger
	switch cfg.Format {
	case FormatJSON:
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	case FormatEvent:
		if sink == nil {
			return nil, fmt.Errorf("log format %q requires an event sink", cfg.Format)
		}
		logger = NewEventLogger(sink)
	default:
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	if cfg.Level.Option != nil {
		logger = level.NewFilter(logger, cfg.Level.Option)
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(3))

	Logger = logger
	return logger, nil
}

// Component returns logger tagged with the component name. Event sinks see
// the component as the event target.
func Component(logger log.Logger, name string) log.Logger {
	return log.With(logger, "component", name)
}
