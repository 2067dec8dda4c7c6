// Package logging sets up the process logger: slog text output on stderr,
// mirrored into a per-run file under the log directory.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileName returns the log file name for a command started at t.
func FileName(command string, t time.Time) string {
	return fmt.Sprintf("%s_%s.log", command, t.Format("20060102_150405"))
}

// Options controls New.
type Options struct {
	Dir     string // empty disables the file copy
	Command string
	Level   slog.Level
	Stderr  io.Writer // defaults to os.Stderr
	Now     func() time.Time
}

// Logger is a configured slog.Logger plus the file backing it.
type Logger struct {
	*slog.Logger
	Path string
	file *os.File
}

// New creates the logger. The log directory is created when missing.
func New(opts Options) (*Logger, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Command == "" {
		opts.Command = "tarim"
	}

	l := &Logger{}
	w := opts.Stderr
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		l.Path = filepath.Join(opts.Dir, FileName(opts.Command, opts.Now()))
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		w = io.MultiWriter(opts.Stderr, f)
	}

	l.Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level}))
	return l, nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
