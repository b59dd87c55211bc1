// Package log provides a structured logging facade over zerolog used
// throughout agentpipe. All packages log through this facade rather than
// importing zerolog directly, so the output format and level can be
// controlled in one place.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
}

// Configure replaces the package logger's level and output. level is a
// zerolog level string ("debug", "info", "warn", "error"); invalid values
// fall back to "info". json selects JSON output instead of the console
// writer, which is what the long-running daemon/metrics paths want.
func Configure(level string, json bool, out io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer = out
	if !json {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger = zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

// Entry wraps a zerolog event-producing logger so call sites can chain
// WithField/WithFields/WithError before picking a level, matching the
// convention used throughout the orchestrator and adapters.
type Entry struct {
	ctx zerolog.Context
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithField returns an Entry with a single field attached.
func WithField(key string, value interface{}) *Entry {
	return &Entry{ctx: current().With().Interface(key, value)}
}

// WithFields returns an Entry with all the given fields attached.
func WithFields(fields map[string]interface{}) *Entry {
	ctx := current().With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Entry{ctx: ctx}
}

// WithError returns an Entry with an "error" field attached.
func WithError(err error) *Entry {
	return &Entry{ctx: current().With().Err(err)}
}

// WithField chains an additional field onto an existing Entry.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{ctx: e.ctx.Interface(key, value)}
}

// WithFields chains additional fields onto an existing Entry.
func (e *Entry) WithFields(fields map[string]interface{}) *Entry {
	ctx := e.ctx
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Entry{ctx: ctx}
}

// WithError chains an "error" field onto an existing Entry.
func (e *Entry) WithError(err error) *Entry {
	return &Entry{ctx: e.ctx.Err(err)}
}

func (e *Entry) Debug(msg string) { e.ctx.Logger().Debug().Msg(msg) }
func (e *Entry) Info(msg string)  { e.ctx.Logger().Info().Msg(msg) }
func (e *Entry) Warn(msg string)  { e.ctx.Logger().Warn().Msg(msg) }
func (e *Entry) Error(msg string) { e.ctx.Logger().Error().Msg(msg) }

// Debug logs at debug level with no extra fields.
func Debug(msg string) { current().Debug().Msg(msg) }

// Info logs at info level with no extra fields.
func Info(msg string) { current().Info().Msg(msg) }

// Warn logs at warn level with no extra fields.
func Warn(msg string) { current().Warn().Msg(msg) }

// Error logs at error level with no extra fields.
func Error(msg string) { current().Error().Msg(msg) }
