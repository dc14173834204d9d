package wssession

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// zerologLogger implements Logger on top of a zerolog.Logger. Fields added through WithField
// become zerolog context fields.
type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger wraps zl so it can be handed to the controller and the transport.
func NewZerologLogger(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return &zerologLogger{zl: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

func (l *zerologLogger) WithField(key string, value any) Logger {
	return &zerologLogger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *zerologLogger) Debug(args ...any) {
	l.zl.Debug().Msg(fmt.Sprint(args...))
}

func (l *zerologLogger) Debugf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *zerologLogger) Debugln(args ...any) {
	l.zl.Debug().Msg(sprintln(args...))
}

func (l *zerologLogger) Info(args ...any) {
	l.zl.Info().Msg(fmt.Sprint(args...))
}

func (l *zerologLogger) Infof(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *zerologLogger) Infoln(args ...any) {
	l.zl.Info().Msg(sprintln(args...))
}

func (l *zerologLogger) Warn(args ...any) {
	l.zl.Warn().Msg(fmt.Sprint(args...))
}

func (l *zerologLogger) Warnf(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *zerologLogger) Warnln(args ...any) {
	l.zl.Warn().Msg(sprintln(args...))
}

func (l *zerologLogger) Error(args ...any) {
	l.zl.Error().Msg(fmt.Sprint(args...))
}

func (l *zerologLogger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

func (l *zerologLogger) Errorln(args ...any) {
	l.zl.Error().Msg(sprintln(args...))
}

// sprintln behaves like fmt.Sprintln without the trailing newline, zerolog terminates lines itself.
func sprintln(args ...any) string {
	return strings.TrimSuffix(fmt.Sprintln(args...), "\n")
}

// ParseLogLevel maps a config level name onto zerolog, falling back to info.
func ParseLogLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
