// Package logging gates the standard logger by severity. Messages keep the
// component prefixes used throughout the daemon ("sense: ...", "ble: ...").
package logging

import (
	"log"
	"strings"
	"sync/atomic"
)

// Level is a log severity. Higher levels are more verbose.
type Level int32

const (
	Err Level = iota
	Warn
	Info
)

func (l Level) String() string {
	switch l {
	case Err:
		return "err"
	case Warn:
		return "warn"
	default:
		return "info"
	}
}

var current atomic.Int32

func init() {
	current.Store(int32(Info))
}

// ParseLevel maps "err", "warn" or "info" to a Level. Anything else is
// Info and ok is false.
func ParseLevel(s string) (l Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "err", "error":
		return Err, true
	case "warn", "warning":
		return Warn, true
	case "info":
		return Info, true
	}
	return Info, false
}

// SetLevel sets the most verbose level that is still written.
func SetLevel(l Level) {
	current.Store(int32(l))
}

// CurrentLevel returns the active level.
func CurrentLevel() Level {
	return Level(current.Load())
}

// Enabled reports whether messages at l are written.
func Enabled(l Level) bool {
	return l <= CurrentLevel()
}

// Errorf logs a failure.
func Errorf(format string, args ...any) {
	printf(Err, format, args...)
}

// Warnf logs a degraded but recoverable condition.
func Warnf(format string, args ...any) {
	printf(Warn, format, args...)
}

// Infof logs routine progress.
func Infof(format string, args ...any) {
	printf(Info, format, args...)
}

func printf(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	if l != Info {
		format = l.String() + ": " + format
	}
	log.Printf(format, args...)
}
