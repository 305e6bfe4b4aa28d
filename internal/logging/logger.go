// Package logging provides the structured line logger shared by toolplan packages.
package logging

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// Logger is a simple structured logger interface.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// StdLogger implements Logger using the standard log package with JSON output.
type StdLogger struct {
	out   *log.Logger
	debug bool
}

// New returns a StdLogger writing JSON lines to w. Debug entries are dropped
// unless debug is true.
func New(w io.Writer, debug bool) *StdLogger {
	return &StdLogger{out: log.New(w, "", 0), debug: debug}
}

// Default returns a StdLogger on stderr. Setting TOOLPLAN_DEBUG enables debug entries.
func Default() *StdLogger {
	return New(os.Stderr, os.Getenv("TOOLPLAN_DEBUG") != "")
}

func (l *StdLogger) Debug(msg string, fields map[string]any) {
	if !l.debug {
		return
	}
	l.write("debug", msg, fields)
}

func (l *StdLogger) Info(msg string, fields map[string]any) { l.write("info", msg, fields) }

func (l *StdLogger) Warn(msg string, fields map[string]any) { l.write("warn", msg, fields) }

func (l *StdLogger) Error(msg string, fields map[string]any) { l.write("error", msg, fields) }

func (l *StdLogger) write(level, msg string, fields map[string]any) {
	// Copy so callers can reuse their maps.
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["level"] = level
	entry["msg"] = msg
	entry["ts"] = time.Now().Format(time.RFC3339)
	b, err := json.Marshal(entry)
	if err != nil {
		l.out.Printf(`{"level":"error","msg":"log entry not encodable","error":%q}`, err.Error())
		return
	}
	l.out.Println(string(b))
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]any) {}
func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Warn(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }
