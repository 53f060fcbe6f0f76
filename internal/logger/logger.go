// Package logger is a thin named, leveled logger matching the call shape
// the teacher's (unincluded) internal/logger package is used with
// throughout session.go/run.go/torrent.go: logger.New("session"),
// l.Debugln(...), l.Errorln(...), l.Infof(...).
package logger

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a named sub-logger.
type Logger struct {
	name string
	zl   zerolog.Logger
}

var root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

// New returns a Logger identified by name in every log line, the same
// way the teacher names a sub-logger per component ("session",
// "peer <- "+addr, ...).
func New(name string) Logger {
	return Logger{name: name, zl: root.With().Str("component", name).Logger()}
}

func (l Logger) Debugln(v ...interface{}) { l.zl.Debug().Msg(sprintln(v...)) }
func (l Logger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprintf(format, v...))
}
func (l Logger) Infoln(v ...interface{}) { l.zl.Info().Msg(sprintln(v...)) }
func (l Logger) Info(v ...interface{})   { l.zl.Info().Msg(sprint(v...)) }
func (l Logger) Infof(format string, v ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, v...))
}
func (l Logger) Warningln(v ...interface{}) { l.zl.Warn().Msg(sprintln(v...)) }
func (l Logger) Warningf(format string, v ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, v...))
}
func (l Logger) Errorln(v ...interface{}) { l.zl.Error().Msg(sprintln(v...)) }
func (l Logger) Error(v ...interface{})   { l.zl.Error().Msg(sprint(v...)) }
func (l Logger) Errorf(format string, v ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, v...))
}

func sprintln(v ...interface{}) string {
	s := fmt.Sprintln(v...)
	return s[:len(s)-1]
}

func sprint(v ...interface{}) string {
	return fmt.Sprint(v...)
}
