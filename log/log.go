// Package log provides the leveled logger used throughout reclass-go.
//
// It mirrors the shape expected by the rest of the tree: package-level
// DEBUG/TRACE/INFO/WARN functions gated by a process-wide level, plus
// a PrintfStdErr helper for ANSI-colored warnings that must reach the
// user regardless of level.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/starkandwayne/goutils/ansi"
)

// Level is the verbosity of the logger.
type Level int

const (
	// LevelError only prints warnings/errors.
	LevelError Level = iota
	// LevelInfo additionally prints informational lines.
	LevelInfo
	// LevelDebug additionally prints DEBUG lines.
	LevelDebug
	// LevelTrace prints everything, including TRACE lines.
	LevelTrace
)

var (
	mu        sync.Mutex
	current   = LevelError
	runID     string
)

// SetLevel sets the process-wide log level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

func level() Level {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// SetRunID attaches a correlation id (typically a uuid) to every log
// line emitted for the remainder of the process, so the lines produced
// by a single CLI invocation can be picked out of a shared log stream.
func SetRunID(id string) {
	mu.Lock()
	defer mu.Unlock()
	runID = id
}

func prefix() string {
	mu.Lock()
	defer mu.Unlock()
	if runID == "" {
		return ""
	}
	return "[" + runID + "] "
}

// TRACE prints a trace-level message.
func TRACE(format string, args ...interface{}) {
	if level() >= LevelTrace {
		fmt.Fprintf(os.Stderr, prefix()+"TRACE: "+format+"\n", args...)
	}
}

// DEBUG prints a debug-level message.
func DEBUG(format string, args ...interface{}) {
	if level() >= LevelDebug {
		fmt.Fprintf(os.Stderr, prefix()+"DEBUG: "+format+"\n", args...)
	}
}

// INFO prints an info-level message.
func INFO(format string, args ...interface{}) {
	if level() >= LevelInfo {
		fmt.Fprintf(os.Stderr, prefix()+"INFO: "+format+"\n", args...)
	}
}

// WARN prints a warning; always visible regardless of level.
func WARN(format string, args ...interface{}) {
	PrintfStdErr(ansi.Sprintf(prefix()+"@Y{warning:} "+format+"\n", args...))
}

// PrintfStdErr writes directly to stderr, bypassing the level gate.
func PrintfStdErr(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}
