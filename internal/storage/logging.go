// Package storage implements the tile-group store, MVCC manager, index set,
// online index builder, and garbage collector described by the hybrid
// scan core: an append-only columnar store with per-slot MVCC metadata,
// concurrent primary/secondary indexes, and a background builder that
// brings a new index up to date one tile group at a time.
package storage

import (
	"fmt"
	"log"
	"os"
)

// Logger is the small leveled wrapper the builder and GC use to report
// retries and anomalies without surfacing errors to foreground queries
// (spec §7: "GC and the index builder do not surface errors to foreground
// queries — they log and retry"). Foreground query paths never log; they
// only return errors.
type Logger struct {
	std *log.Logger
}

// NewLogger creates a Logger writing to stderr with a component prefix,
// matching the plain stdlib "log" usage already found throughout the
// storage package (see scheduler.go, concurrency.go).
func NewLogger(component string) *Logger {
	return &Logger{std: log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags)}
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	l.std.Printf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	l.std.Printf("WARN "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	l.std.Printf("ERROR "+format, args...)
}
