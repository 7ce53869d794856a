package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// Level is the verbosity of a logger.
type Level int

const (
	// LevelQuiet shows errors only (-q)
	LevelQuiet Level = -1
	// LevelNormal shows progress and warnings
	LevelNormal Level = 0
	// LevelVerbose adds per-file details (-v)
	LevelVerbose Level = 1
	// LevelDebug adds lowering internals (-vv)
	LevelDebug Level = 2
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorGray   = "\033[90m"
)

// Logger writes leveled, prefixed lines. It is safe for concurrent use.
type Logger struct {
	level Level
	out   io.Writer
	color bool
	mu    sync.Mutex
}

// New creates a logger writing to stderr. Colors are used when stderr is
// a terminal.
func New(level int) *Logger {
	return NewWriter(level, os.Stderr)
}

// NewWriter creates a logger writing to w.
func NewWriter(level int, w io.Writer) *Logger {
	return &Logger{level: Level(level), out: w, color: IsTerminal(w)}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsVerbose reports whether -v or more was given.
func (l *Logger) IsVerbose() bool {
	return l.level >= LevelVerbose
}

// IsDebug reports whether -vv was given.
func (l *Logger) IsDebug() bool {
	return l.level >= LevelDebug
}

// V logs at verbose level.
func (l *Logger) V(format string, args ...interface{}) {
	if l.IsVerbose() {
		l.print("[*] ", colorGray, format, args...)
	}
}

// VV logs at debug level.
func (l *Logger) VV(format string, args ...interface{}) {
	if l.IsDebug() {
		l.print("[VV] ", colorGray, format, args...)
	}
}

// Info logs progress. Hidden when quiet.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level > LevelQuiet {
		l.print("[+] ", colorGreen, format, args...)
	}
}

// Warn logs something that was left alone. Hidden when quiet.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level > LevelQuiet {
		l.print("[-] ", colorYellow, format, args...)
	}
}

// Error is always shown.
func (l *Logger) Error(format string, args ...interface{}) {
	l.print("[!] ", colorRed, format, args...)
}

// Section starts a block of debug output.
func (l *Logger) Section(title string) {
	if l.IsDebug() {
		l.mu.Lock()
		defer l.mu.Unlock()
		fmt.Fprintf(l.out, "\n[VV] === %s ===\n", title)
	}
}

// Detail logs an indented debug line.
func (l *Logger) Detail(format string, args ...interface{}) {
	if l.IsDebug() {
		l.print("[VV]   ", colorGray, format, args...)
	}
}

func (l *Logger) print(prefix, color, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color {
		prefix = color + prefix + colorReset
	}
	fmt.Fprintf(l.out, prefix+format+"\n", args...)
}
