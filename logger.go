package avplay

import (
	"log"
	"time"

	"golang.org/x/time/rate"
)

var pkgLogger Logger = log.Default()

type Logger interface {
	Printf(format string, v ...any)
}

// SetLogger replaces the package logger. It should be called before any
// [Decoder] starts playing.
func SetLogger(logger Logger) {
	pkgLogger = logger
}

// throttledLogger logs the first few occurrences of per-packet and per-frame
// failures and then at most one per interval, so that a corrupt stream can't
// flood the log.
type throttledLogger struct {
	sometimes rate.Sometimes
}

func newThrottledLogger(interval time.Duration) *throttledLogger {
	return &throttledLogger{sometimes: rate.Sometimes{First: 5, Interval: interval}}
}

func (l *throttledLogger) Printf(format string, v ...any) {
	l.sometimes.Do(func() { pkgLogger.Printf(format, v...) })
}

// Logf logs through the package logger. The backend and audio subpackages
// use it so that [SetLogger] covers them too.
func Logf(format string, v ...any) {
	pkgLogger.Printf(format, v...)
}
