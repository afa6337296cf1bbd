// Package logger provides JSON structured logging using zerolog.
//
// There is no package-level logger: New builds one from Config and callers
// pass it down explicitly.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string `json:"level" yaml:"level"`
	Debug      bool   `json:"debug" yaml:"debug"`
	Output     string `json:"output" yaml:"output"`
	TimeFormat string `json:"time_format" yaml:"timeFormat"`
}

// New builds a logger writing to stdout (or stderr when Output is "stderr").
func New(config Config) (zerolog.Logger, error) {
	var output io.Writer = os.Stdout

	if config.Output == "stderr" {
		output = os.Stderr
	}

	return NewWithWriter(config, output)
}

// NewWithWriter is New with an explicit sink, used by tests.
func NewWithWriter(config Config, output io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return zerolog.Nop(), err
		}
	}

	timeFormat := time.RFC3339
	if config.TimeFormat != "" {
		timeFormat = config.TimeFormat
	}

	l := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// zerolog keeps the time format process-wide; set it once here
	zerolog.TimeFieldFormat = timeFormat

	return l, nil
}

func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

func WithFields(l zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := l.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}

	return ctx.Logger()
}
