package output

import (
	"fmt"
	"os"
	"time"
)

// Progress reports watchdog startup/shutdown status to stderr.
type Progress struct {
	enabled bool
	verbose bool
	start   time.Time
}

// NewProgress creates a Progress reporter. Set enabled=false for --quiet mode.
func NewProgress(enabled bool) *Progress {
	return &Progress{enabled: enabled, start: time.Now()}
}

// NewVerboseProgress creates a Progress reporter with verbose debug
// output. verbose=true always implies enabled=true, since a debug
// message without its surrounding progress context is confusing.
func NewVerboseProgress(enabled, verbose bool) *Progress {
	return &Progress{enabled: enabled || verbose, verbose: verbose, start: time.Now()}
}

// Log prints a progress message to stderr if enabled.
func (p *Progress) Log(format string, args ...interface{}) {
	if !p.enabled {
		return
	}
	elapsed := time.Since(p.start).Round(time.Millisecond)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "[%s] %s\n", elapsed, msg)
}

// Debug prints a debug-prefixed message only when verbose is set.
func (p *Progress) Debug(format string, args ...interface{}) {
	if !p.verbose {
		return
	}
	p.Log("DEBUG: "+format, args...)
}
