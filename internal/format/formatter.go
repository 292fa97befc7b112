// Package format renders command results and operator notifications
package format

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/wayfarer/cli/internal/config"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(w io.Writer, data interface{}) error
}

// Formats lists the accepted --output values
var Formats = []string{"table", "json", "json-compact", "yaml", "text"}

// GetFormatter returns a formatter based on the specified format
func GetFormatter(format string, useColors bool) (Formatter, error) {
	switch format {
	case "table":
		return NewTableFormatter(useColors), nil
	case "json":
		return NewJSONFormatter(true), nil
	case "json-compact":
		return NewJSONFormatter(false), nil
	case "yaml":
		return NewYAMLFormatter(), nil
	case "text":
		return NewTextFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Fprint formats data to w using the configured output format
func Fprint(w io.Writer, data interface{}) error {
	formatter, err := GetFormatter(config.GetOutputFormat(), config.Get().Format.Colors && !color.NoColor)
	if err != nil {
		return err
	}
	return formatter.Format(w, data)
}

// Notifier prints transient operator messages. Errors and warnings go to the
// error stream so they never mix with formatted output.
type Notifier struct {
	out    io.Writer
	errOut io.Writer
	colors bool
}

// NewNotifier creates a notifier writing to out and errOut
func NewNotifier(out, errOut io.Writer, useColors bool) *Notifier {
	return &Notifier{out: out, errOut: errOut, colors: useColors}
}

// DefaultNotifier writes to stdout and stderr with the configured colours
func DefaultNotifier() *Notifier {
	return NewNotifier(os.Stdout, os.Stderr, config.Get().Format.Colors && !color.NoColor)
}

// Success prints a success message
func (n *Notifier) Success(message string) {
	n.print(n.out, color.FgGreen, "", message)
}

// Error prints an error message
func (n *Notifier) Error(message string) {
	n.print(n.errOut, color.FgRed, "Error: ", message)
}

// Warning prints a warning message
func (n *Notifier) Warning(message string) {
	n.print(n.errOut, color.FgYellow, "Warning: ", message)
}

// Info prints an info message
func (n *Notifier) Info(message string) {
	n.print(n.out, color.FgBlue, "Info: ", message)
}

// Debug prints a debug message if debug mode is enabled
func (n *Notifier) Debug(message string) {
	if config.IsDebug() {
		n.print(n.errOut, color.FgCyan, "[DEBUG] ", message)
	}
}

// print drops the plain-text prefix when colour already marks the severity
func (n *Notifier) print(w io.Writer, attr color.Attribute, prefix, message string) {
	if !n.colors {
		fmt.Fprintln(w, prefix+message)
		return
	}
	if attr != color.FgCyan {
		prefix = ""
	}
	c := color.New(attr)
	c.EnableColor()
	c.Fprintln(w, prefix+message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string, args ...interface{}) {
	DefaultNotifier().Success(fmt.Sprintf(message, args...))
}

// PrintError prints an error message
func PrintError(message string, args ...interface{}) {
	DefaultNotifier().Error(fmt.Sprintf(message, args...))
}

// PrintWarning prints a warning message
func PrintWarning(message string, args ...interface{}) {
	DefaultNotifier().Warning(fmt.Sprintf(message, args...))
}

// PrintInfo prints an info message
func PrintInfo(message string, args ...interface{}) {
	DefaultNotifier().Info(fmt.Sprintf(message, args...))
}
