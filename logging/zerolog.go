// Package logging adapts zerolog to the auth.Logger interface.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	auth "github.com/trialbridge/go-auth"
)

// Options configures New.
type Options struct {
	Level   string
	Console bool
	Output  io.Writer
}

// ZerologLogger implements auth.Logger on top of a zerolog.Logger.
type ZerologLogger struct {
	root zerolog.Logger
	log  zerolog.Logger
}

var _ auth.Logger = (*ZerologLogger)(nil)

// New builds a logger writing JSON lines, or human readable lines when
// Console is set. Unknown levels fall back to info.
func New(opts Options) *ZerologLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return Wrap(zerolog.New(out).Level(level).With().Timestamp().Logger()).With("auth")
}

// Wrap adapts an existing zerolog logger.
func Wrap(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{root: logger, log: logger}
}

// With returns a child logger tagged with component.
func (l *ZerologLogger) With(component string) *ZerologLogger {
	return &ZerologLogger{root: l.root, log: l.root.With().Str("component", component).Logger()}
}

// Zerolog exposes the underlying logger.
func (l *ZerologLogger) Zerolog() *zerolog.Logger {
	return &l.log
}

func (l *ZerologLogger) Debug(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Info(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warn(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Error(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
