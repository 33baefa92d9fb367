// Package logging provides the optional file logger behind the --log flag.
// The TUI owns stdout, so log output always goes to a file in the working
// directory; with logging disabled every call is a no-op.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

const (
	levelOff = iota
	levelError
	levelWarn
	levelInfo
	levelDebug
	levelTrace
)

type Logger struct {
	level  int
	logger *log.Logger
	file   *os.File
}

// nop is returned before Init and after Close so call sites never nil-check.
var active = &Logger{level: levelOff, logger: log.New(io.Discard, "", 0)}

// Init opens (or creates) the log file and installs the package logger.
func Init(path, level string) error {
	lv, err := parseLevel(level)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	active = &Logger{
		level:  lv,
		logger: log.New(f, "", log.LstdFlags|log.Lmicroseconds),
		file:   f,
	}
	return nil
}

func Close() {
	if active.file != nil {
		_ = active.file.Close()
	}
	active = &Logger{level: levelOff, logger: log.New(io.Discard, "", 0)}
}

func parseLevel(s string) (int, error) {
	switch strings.ToLower(s) {
	case "off":
		return levelOff, nil
	case "error":
		return levelError, nil
	case "warn":
		return levelWarn, nil
	case "info", "":
		return levelInfo, nil
	case "debug":
		return levelDebug, nil
	case "trace":
		return levelTrace, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func logf(level int, label, sub, format string, args ...any) {
	if active.level < level {
		return
	}
	active.logger.Printf(label+" ["+sub+"] "+format, args...)
}

// The first argument names the subsystem (ssh, transfer, forward, app).
func Errorf(sub, format string, args ...any) { logf(levelError, "ERROR", sub, format, args...) }
func Warnf(sub, format string, args ...any)  { logf(levelWarn, "WARN", sub, format, args...) }
func Infof(sub, format string, args ...any)  { logf(levelInfo, "INFO", sub, format, args...) }
func Debugf(sub, format string, args ...any) { logf(levelDebug, "DEBUG", sub, format, args...) }
func Tracef(sub, format string, args ...any) { logf(levelTrace, "TRACE", sub, format, args...) }
