// Package logging builds the prefixed *log.Logger values every subsystem
// writes through, optionally teeing into a rotating log file.
package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cdswerx/cdsync/internal/config"
)

// Factory hands out subsystem loggers sharing one output.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger
	mu   sync.Mutex
}

// NewFactory creates a Factory writing to stderr and, when cfg.File is set,
// to a lumberjack rotating file.
func NewFactory(cfg config.LogConfig) *Factory {
	return newFactory(os.Stderr, cfg)
}

func newFactory(stderr io.Writer, cfg config.LogConfig) *Factory {
	f := &Factory{out: stderr}
	if cfg.File != "" {
		f.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		f.out = io.MultiWriter(stderr, f.file)
	}
	return f
}

// New returns a logger prefixed "[subsystem] ".
func (f *Factory) New(subsystem string) *log.Logger {
	return log.New(f, Prefix(subsystem), log.LstdFlags)
}

// Write implements io.Writer over the current output.
func (f *Factory) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(p)
}

// Quiet drops stderr output for every logger of this factory, keeping only
// the log file (if any).
func (f *Factory) Quiet() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file != nil {
		f.out = f.file
	} else {
		f.out = io.Discard
	}
}

// Close closes the log file.
func (f *Factory) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

// Prefix formats a subsystem name as a log prefix.
func Prefix(subsystem string) string {
	return "[" + strings.TrimSpace(subsystem) + "] "
}

// New is shorthand for NewFactory(cfg).New(subsystem).
func New(cfg config.LogConfig, subsystem string) *log.Logger {
	return NewFactory(cfg).New(subsystem)
}
