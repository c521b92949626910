// Package logging provides severity-tagged line sinks.
//
// Every external command run during a deployment produces three streams of
// lines: the command line itself (INFO), its stdout (DEBUG) and its stderr
// (WARN). Sinks receive those lines one at a time. The console sink forwards
// them to klog; the transcript sink appends them to the deployment logfile.
package logging

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"k8s.io/klog/v2"
)

// Severity tags a single line of output.
type Severity string

const (
	// SeverityDebug is used for command stdout and internal trace lines.
	SeverityDebug Severity = "DEBUG"

	// SeverityInfo is used for executed command lines and progress messages.
	SeverityInfo Severity = "INFO"

	// SeverityWarn is used for command stderr and non-fatal problems.
	SeverityWarn Severity = "WARN"
)

// String satisfies fmt.Stringer.
func (s Severity) String() string {
	return string(s)
}

// DebugVerbosity is the klog verbosity level at which DEBUG lines are shown.
const DebugVerbosity klog.Level = 2

// Sink consumes one line of text tagged with a severity.
type Sink interface {
	Line(sev Severity, line string)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(sev Severity, line string)

// Line calls f.
func (f SinkFunc) Line(sev Severity, line string) {
	f(sev, line)
}

// Discard drops every line.
var Discard Sink = SinkFunc(func(Severity, string) {})

// Printf formats a message and sends it to sink.
func Printf(sink Sink, sev Severity, format string, args ...interface{}) {
	sink.Line(sev, fmt.Sprintf(format, args...))
}

// Console forwards lines to klog: INFO to Info, WARN to Warning and DEBUG to
// Info at DebugVerbosity.
type Console struct{}

// Line implements Sink.
func (Console) Line(sev Severity, line string) {
	switch sev {
	case SeverityWarn:
		klog.Warning(line)
	case SeverityDebug:
		klog.V(DebugVerbosity).Info(line)
	default:
		klog.Info(line)
	}
}

// multi fans a line out to several sinks.
type multi []Sink

func (m multi) Line(sev Severity, line string) {
	for _, s := range m {
		s.Line(sev, line)
	}
}

// Multi returns a sink that forwards every line to all non-nil sinks.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// Transcript appends lines to a logfile in the form "%6s %s\n".
// Write failures are reported through klog and never propagate.
type Transcript struct {
	path string

	mu sync.Mutex
}

// NewTranscript returns a transcript sink writing to path. The parent
// directory is created on first write.
func NewTranscript(path string) *Transcript {
	return &Transcript{path: path}
}

// Path returns the logfile location.
func (t *Transcript) Path() string {
	return t.path
}

// Line implements Sink.
func (t *Transcript) Line(sev Severity, line string) {
	if t == nil || t.path == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.appendLine(sev, line); err != nil {
		klog.Errorf("cannot append to logfile %s: %v", t.path, err)
	}
}

func (t *Transcript) appendLine(sev Severity, line string) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%6s %s\n", sev, line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ConfigureKlog sets klog's verbosity so DEBUG lines are shown when verbose
// is true. klog registers its flags on a private FlagSet; they are not
// exposed on the command line.
func ConfigureKlog(verbose bool) {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	level := 0
	if verbose {
		level = int(DebugVerbosity)
	}
	_ = fs.Set("v", strconv.Itoa(level))
}
