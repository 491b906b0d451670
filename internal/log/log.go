// Package log implements the small leveled logger this module's
// components share: the engine's own diagnostics plus whatever a host
// program's demo binary wants to print. It writes to stderr with an
// optional timestamp prefix, which is what a process supervised by
// systemd (or equivalent) typically wants — the supervisor's own
// journal already stamps each line, so timestamps are opt-in via
// -logtime rather than on by default.
package log

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	vLevel = flag.Int("v", 0, "verbosity level (1 = debug)")

	logTime = flag.Bool("logtime", false,
		"include the time when writing log lines")
)

// Level orders the severities this package knows about, lowest first.
type Level int

const (
	Fatal = Level(-2)
	Error = Level(-1)
	Info  = Level(0)
	Debug = Level(1)
)

var levelToLetter = map[Level]string{
	Fatal: "F",
	Error: "E",
	Info:  "_",
	Debug: ".",
}

// Logger writes leveled lines to stderr, gated by Level and optionally
// prefixed with a timestamp.
type Logger struct {
	Level   Level
	LogTime bool

	CallerSkip int

	sync.Mutex
}

func New() *Logger {
	return &Logger{Level: Info, LogTime: false}
}

func (l *Logger) V(level Level) bool {
	return level <= l.Level
}

// Log writes one line if level is enabled, prefixed with the caller's
// file:line (skip frames beyond Log itself) and a one-letter severity
// marker.
func (l *Logger) Log(level Level, skip int, format string, a ...interface{}) {
	if !l.V(level) {
		return
	}

	msg := fmt.Sprintf(format, a...)

	_, file, line, ok := runtime.Caller(1 + l.CallerSkip + skip)
	if !ok {
		file = "unknown"
	}
	fl := fmt.Sprintf("%s:%-4d", filepath.Base(file), line)
	if len(fl) > 18 {
		fl = fl[len(fl)-18:]
	}
	msg = fmt.Sprintf("%-18s", fl) + " " + msg

	letter, ok := levelToLetter[level]
	if !ok {
		letter = strconv.Itoa(int(level))
	}
	msg = letter + " " + msg

	if l.LogTime {
		msg = time.Now().Format("20060102 15:04:05.000000 ") + msg
	}

	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	l.Lock()
	os.Stderr.WriteString(msg)
	l.Unlock()
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.Log(Info, 1, format, a...)
}

func (l *Logger) Errorf(format string, a ...interface{}) error {
	l.Log(Error, 1, format, a...)
	return fmt.Errorf(format, a...)
}

func (l *Logger) Fatalf(format string, a ...interface{}) {
	l.Log(Fatal, 1, format, a...)
	os.Exit(1)
}

// Default is the logger every top-level function below delegates to.
var Default = &Logger{CallerSkip: 1, Level: Info, LogTime: false}

// Init applies -v/-logtime to Default. Must be called after
// flag.Parse().
func Init() {
	Default.CallerSkip = 1
	Default.Level = Level(*vLevel)
	Default.LogTime = *logTime
}

func Log(level Level, skip int, format string, a ...interface{}) {
	Default.Log(level, skip, format, a...)
}

func Infof(format string, a ...interface{}) {
	Default.Infof(format, a...)
}

func Errorf(format string, a ...interface{}) error {
	return Default.Errorf(format, a...)
}

func Fatalf(format string, a ...interface{}) {
	Default.Fatalf(format, a...)
}
