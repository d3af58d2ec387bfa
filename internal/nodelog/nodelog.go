// Package nodelog provides the per-subsystem loggers used across this
// module: a single rotator feeds a handful of tagged *log.Logger values,
// so log lines carry both a subsystem tag and roll to disk without every
// package reaching for its own file handle.
package nodelog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

// Subsystem tags, kept to the four areas this node actually has: this is a
// pedagogical single-binary node, not a daemon with a dozen services.
const (
	Chain  = "CHAN"
	UTXO   = "UTXO"
	Net    = "NET "
	Wallet = "WALT"
)

var (
	logRotator *rotator.Rotator
	initiated  bool

	loggers = map[string]*log.Logger{}
)

type rotatorWriter struct{}

func (rotatorWriter) Write(p []byte) (int, error) {
	if initiated {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Init opens the log file and its rotated siblings under dir. Until it is
// called, subsystem loggers write to stdout only; tests never call it.
func Init(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("nodelog: create log dir: %w", err)
	}
	r, err := rotator.New(filepath.Join(dir, "node.log"), 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("nodelog: open log rotator: %w", err)
	}
	logRotator = r
	initiated = true
	return nil
}

// Close flushes and closes the log rotator, if one was initialized.
func Close() {
	if initiated && logRotator != nil {
		logRotator.Close()
	}
}

// Get returns the logger for subsystem tag, creating it on first use.
func Get(tag string) *log.Logger {
	if l, ok := loggers[tag]; ok {
		return l
	}
	w := io.MultiWriter(os.Stdout, rotatorWriter{})
	l := log.New(w, fmt.Sprintf("%s ", tag), log.LstdFlags)
	loggers[tag] = l
	return l
}
