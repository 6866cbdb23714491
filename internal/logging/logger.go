// Package logging provides the tagged console logger used by compose-backup.
//
// Every recoverable event of a backup run is reported with one of four
// severity tags: [OK], [WARN], [ERROR] and [SKIP]. The logger is a thin layer
// over logrus so that the same events can also be emitted as JSON lines
// (--log-format json) for log shippers.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Tags attached to log entries through the FieldTag field.
const (
	TagOK    = "OK"
	TagWarn  = "WARN"
	TagError = "ERROR"
	TagSkip  = "SKIP"
	TagDebug = "DEBUG"
)

// Field names with a fixed meaning.
const (
	// FieldTag carries the severity tag of an entry.
	FieldTag = "tag"

	// FieldRunID identifies all entries of a single run.
	FieldRunID = "run_id"

	// FieldService and FieldContainer scope entries about one container.
	FieldService   = "service"
	FieldContainer = "container"
)

// Format is the output encoding of the logger.
type Format string

const (
	// FormatText prints "[TAG] message" lines.
	FormatText Format = "text"

	// FormatJSON prints one logrus JSON object per line.
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format: %q (valid: text, json)", s)
	}
}

// Config holds logger configuration.
type Config struct {
	// Output receives all log lines. Defaults to os.Stdout.
	Output io.Writer

	// Format selects text or JSON output.
	Format Format

	// Verbose enables debug entries (external command invocations).
	Verbose bool

	// NoColor disables tag coloring even on a terminal.
	NoColor bool

	// RunID is attached to every entry when non-empty.
	RunID string
}

// Logger writes tagged log entries.
type Logger struct {
	entry *logrus.Entry
}

// New creates a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(out)

	switch cfg.Format {
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(newTagFormatter(!cfg.NoColor && isTerminal(out)))
	}

	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	entry := logrus.NewEntry(logger)
	if cfg.RunID != "" {
		entry = entry.WithField(FieldRunID, cfg.RunID)
	}
	return &Logger{entry: entry}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return New(Config{Output: io.Discard, NoColor: true})
}

// isTerminal reports whether w is a terminal file descriptor.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// WithField returns a Logger that attaches key=value to every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// OK reports a successfully written backup artifact.
func (l *Logger) OK(format string, args ...interface{}) {
	l.entry.WithField(FieldTag, TagOK).Infof(format, args...)
}

// Skip reports work that was intentionally not repeated.
func (l *Logger) Skip(format string, args ...interface{}) {
	l.entry.WithField(FieldTag, TagSkip).Infof(format, args...)
}

// Warn reports a recoverable problem that skipped part of the run.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.WithField(FieldTag, TagWarn).Warnf(format, args...)
}

// Error reports a failed backup item. The run continues.
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.WithField(FieldTag, TagError).Errorf(format, args...)
}

// Debug reports verbose-only details.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.WithField(FieldTag, TagDebug).Debugf(format, args...)
}

// tagFormatter renders entries as "[TAG] message".
type tagFormatter struct {
	colors map[string]*color.Color
}

func newTagFormatter(useColor bool) *tagFormatter {
	colors := map[string]*color.Color{
		TagOK:    color.New(color.FgGreen),
		TagWarn:  color.New(color.FgYellow),
		TagError: color.New(color.FgRed, color.Bold),
		TagSkip:  color.New(color.FgCyan),
		TagDebug: color.New(color.Faint),
	}
	for _, c := range colors {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &tagFormatter{colors: colors}
}

// Format implements logrus.Formatter.
func (f *tagFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if tag, ok := e.Data[FieldTag].(string); ok && tag != "" {
		label := "[" + tag + "]"
		if c, ok := f.colors[tag]; ok {
			label = c.Sprint(label)
		}
		b.WriteString(label)
		b.WriteByte(' ')
	}
	b.WriteString(e.Message)

	// Extra fields are noise in normal runs; show them only when debugging.
	if e.Logger != nil && e.Logger.IsLevelEnabled(logrus.DebugLevel) {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			if k == FieldTag || k == FieldRunID {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
