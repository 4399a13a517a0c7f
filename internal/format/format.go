// Package format renders records as text, csv, tsv or json for the CLI.
package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format is an output format.
type Format string

const (
	Text Format = "text"
	CSV  Format = "csv"
	TSV  Format = "tsv"
	JSON Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{Text, CSV, TSV, JSON}

// Parse returns the format named s (case-insensitive).
func Parse(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Field is one named value of a record. A nil Value is absent.
type Field struct {
	Key   string
	Value any
}

// Record is anything that can be rendered.
type Record interface {
	Fields() []Field
}

// Options tweak rendering.
type Options struct {
	// EscapeWhitespace escapes newlines, tabs and backslashes in csv and
	// tsv values.
	EscapeWhitespace bool
}

// Write renders records to w. Nothing is written for no records.
func Write(w io.Writer, f Format, records []Record, opts Options) error {
	if len(records) == 0 {
		return nil
	}
	switch f {
	case Text, "":
		return writeText(w, records)
	case CSV:
		return writeDelimited(w, ',', records, opts)
	case TSV:
		return writeDelimited(w, '\t', records, opts)
	case JSON:
		return writeJSON(w, records)
	default:
		return fmt.Errorf("unsupported output format %q", f)
	}
}

// writeText prints "key: value" lines, records separated by a blank line.
// Absent values are omitted.
func writeText(w io.Writer, records []Record) error {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, f := range r.Fields() {
			if f.Value == nil {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", f.Key, valueString(f.Value))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDelimited(w io.Writer, comma rune, records []Record, opts Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	first := records[0].Fields()
	header := make([]string, len(first))
	for i, f := range first {
		header[i] = f.Key
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		values := make(map[string]string)
		for _, f := range r.Fields() {
			if f.Value == nil {
				continue
			}
			v := valueString(f.Value)
			if opts.EscapeWhitespace {
				v = EscapeWhitespace(v)
			}
			values[f.Key] = v
		}
		row := make([]string, len(header))
		for i, k := range header {
			row[i] = values[k]
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, records []Record) error {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		m := make(map[string]any)
		for _, f := range r.Fields() {
			m[f.Key] = f.Value
		}
		out[i] = m
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// EscapeWhitespace replaces backslash, newline, carriage return, tab, form
// feed and vertical tab with their backslash escapes.
func EscapeWhitespace(s string) string {
	return whitespaceEscaper.Replace(s)
}

var whitespaceEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\f", `\f`,
	"\v", `\v`,
)

func valueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case bool:
		return strconv.FormatBool(x)
	case []string:
		return strings.Join(x, "\n")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
