// Package debug holds the process-wide verbosity switches and the helpers
// that print according to them.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	enabled     = os.Getenv("SPECSYNC_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	mu     sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet suppresses informational output
func SetQuiet(quiet bool) {
	quietMode = quiet
}

func IsQuiet() bool {
	return quietMode
}

// SetOutput redirects stdout and stderr output and returns a func that
// restores the previous writers.
func SetOutput(out, errOut io.Writer) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	prevOut, prevErr := stdout, stderr
	stdout, stderr = out, errOut
	return func() {
		mu.Lock()
		defer mu.Unlock()
		stdout, stderr = prevOut, prevErr
	}
}

// Logf writes diagnostics to stderr when debugging is on.
func Logf(format string, args ...interface{}) {
	if Enabled() {
		write(stderrWriter(), format, args...)
	}
}

func Printf(format string, args ...interface{}) {
	if Enabled() {
		write(stdoutWriter(), format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		write(stdoutWriter(), format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		write(stdoutWriter(), "%s\n", fmt.Sprint(args...))
	}
}

// Warnf always writes to stderr, quiet or not.
func Warnf(format string, args ...interface{}) {
	write(stderrWriter(), format, args...)
}

func stdoutWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return stdout
}

func stderrWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return stderr
}

func write(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
