// Package output renders analysis results as text, markdown, JSON or TOON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	toon "github.com/toon-format/toon-go"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat converts a string to Format. The empty string selects text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "toon":
		return FormatTOON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, markdown or toon)", s)
	}
}

// Renderable is a view that can draw itself for people and expose its data
// for machines.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData is what JSON and TOON serialize.
	RenderData() any
}

// Formatter writes values in one format to one destination.
type Formatter struct {
	format  Format
	w       io.Writer
	closer  io.Closer
	colored bool
}

// NewFormatter writes to the file at path, or to stdout when path is empty.
// Files are never colored.
func NewFormatter(format Format, path string, colored bool) (*Formatter, error) {
	if path == "" {
		return NewWriterFormatter(format, os.Stdout, colored), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Formatter{format: format, w: f, closer: f}, nil
}

// NewWriterFormatter writes to w.
func NewWriterFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, w: w, colored: colored}
}

// Close closes the destination file, if the formatter opened one.
func (f *Formatter) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Colored reports whether text output uses ANSI colors.
func (f *Formatter) Colored() bool {
	return f.colored
}

// Output writes data. Values that are not Renderable are serialized as they
// are; markdown wraps them in a JSON code block.
func (f *Formatter) Output(data any) error {
	r, ok := data.(Renderable)
	switch {
	case f.format == FormatJSON:
		if ok {
			data = r.RenderData()
		}
		return f.writeJSON(data)
	case f.format == FormatTOON:
		if ok {
			data = r.RenderData()
		}
		return f.writeTOON(data)
	case !ok && f.format == FormatMarkdown:
		fmt.Fprintln(f.w, "```json")
		if err := f.writeJSON(data); err != nil {
			return err
		}
		_, err := fmt.Fprintln(f.w, "```")
		return err
	case !ok:
		return f.writeJSON(data)
	case f.format == FormatMarkdown:
		return r.RenderMarkdown(f.w)
	default:
		return r.RenderText(f.w, f.colored)
	}
}

func (f *Formatter) writeJSON(data any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (f *Formatter) writeTOON(data any) error {
	out, err := toon.Marshal(data, toon.WithIndent(2))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.w, string(out))
	return err
}

// Success prints a green status line.
func (f *Formatter) Success(format string, args ...any) {
	f.message(color.FgGreen, "", format, args...)
}

// Warning prints a yellow status line, or one prefixed with WARNING when
// color is off.
func (f *Formatter) Warning(format string, args ...any) {
	f.message(color.FgYellow, "WARNING: ", format, args...)
}

func (f *Formatter) message(attr color.Attribute, plainPrefix, format string, args ...any) {
	if f.colored {
		color.New(attr).Fprintf(f.w, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.w, plainPrefix+format+"\n", args...)
}

// SeverityColor colors text red, yellow or green by severity.
func SeverityColor(severity, text string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return color.RedString(text)
	case "medium", "moderate":
		return color.YellowString(text)
	case "low":
		return color.GreenString(text)
	default:
		return text
	}
}
