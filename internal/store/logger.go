package store

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes badger's printf-style logging into slog. Badger's own
// info chatter is demoted to debug.
type badgerLogger struct {
	l *slog.Logger
}

func newBadgerLogger(l *slog.Logger) *badgerLogger {
	return &badgerLogger{l: l}
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(msg(format, args))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(msg(format, args))
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(msg(format, args))
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(msg(format, args))
}

func msg(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
