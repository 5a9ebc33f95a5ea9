// Package render provides centralized output rendering for the runledger CLI.
//
// Format selection rules:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// --no-color affects table output only.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Section is one titled block of table output.
type Section struct {
	Title string
	Data  any
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
	styles  styles
}

// NewRenderer creates a renderer from CLI context, writing to the app's writer.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}

	// Apply default format based on TTY detection
	if format == "" {
		if f, ok := out.(*os.File); ok && isTTY(f) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return NewRendererWithWriter(format, c.Bool("no-color"), out), nil
}

// NewRendererWithWriter creates a renderer with a custom writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
		styles:  newStyles(lipgloss.NewRenderer(out)),
	}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderView outputs view as a single document for json and yaml, and as
// titled tables for table output.
func (r *Renderer) RenderView(view any, sections ...Section) error {
	if r.format != FormatTable {
		return r.Render(view)
	}
	for i, s := range sections {
		if i > 0 {
			if _, err := fmt.Fprintln(r.out); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(r.out, r.paint(r.styles.title, s.Title)); err != nil {
			return err
		}
		if err := r.renderTable(s.Data); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// renderYAML goes through JSON so json tags and custom marshalers apply.
func (r *Renderer) renderYAML(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func (r *Renderer) renderTable(data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		_, err := fmt.Fprintln(r.out, "(none)")
		return err
	}
	if v.Kind() == reflect.Slice {
		return r.renderSliceTable(v)
	}
	return r.renderStructTable(data)
}

func (r *Renderer) renderSliceTable(v reflect.Value) error {
	if v.Len() == 0 {
		_, err := fmt.Fprintln(r.out, "(no results)")
		return err
	}

	headers := getHeaders(v.Index(0))
	rows := make([][]string, 0, v.Len())
	for i := range v.Len() {
		rows = append(rows, getRowValues(v.Index(i), headers))
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(r.paint(r.styles.header, pad(h, widths[i], i == len(headers)-1)))
	}
	b.WriteByte('\n')
	for _, row := range rows {
		for i, cell := range row {
			b.WriteString(r.paint(r.styles.cell(cell), pad(cell, widths[i], i == len(row)-1)))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *Renderer) renderStructTable(data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	var keys, vals []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			name, ok := fieldName(t.Field(i))
			if !ok {
				continue
			}
			keys = append(keys, name)
			vals = append(vals, formatValue(v.Field(i)))
		}
	case reflect.Map:
		for _, k := range sortedKeys(v) {
			keys = append(keys, fmt.Sprintf("%v", k.Interface()))
			vals = append(vals, formatValue(v.MapIndex(k)))
		}
	default:
		_, err := fmt.Fprintf(r.out, "%v\n", data)
		return err
	}

	width := 0
	for _, k := range keys {
		width = max(width, lipgloss.Width(k)+1)
	}
	var b strings.Builder
	for i, k := range keys {
		b.WriteString(r.paint(r.styles.label, pad(k+":", width, false)))
		b.WriteString(r.paint(r.styles.cell(vals[i]), vals[i]))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *Renderer) paint(style lipgloss.Style, s string) string {
	if r.noColor {
		return s
	}
	return style.Render(s)
}

// pad right-pads s to width plus a two-space gutter. The last column is not padded.
func pad(s string, width int, last bool) string {
	if last {
		return s
	}
	return s + strings.Repeat(" ", width-lipgloss.Width(s)+2)
}

func getHeaders(v reflect.Value) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	var headers []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if name, ok := fieldName(t.Field(i)); ok {
				headers = append(headers, name)
			}
		}
	case reflect.Map:
		for _, key := range sortedKeys(v) {
			headers = append(headers, fmt.Sprintf("%v", key.Interface()))
		}
	default:
		headers = []string{"value"}
	}
	return headers
}

func getRowValues(v reflect.Value, headers []string) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	var values []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			if _, ok := fieldName(t.Field(i)); ok {
				values = append(values, formatValue(v.Field(i)))
			}
		}
	case reflect.Map:
		for _, h := range headers {
			val := v.MapIndex(reflect.ValueOf(h))
			values = append(values, formatValue(val))
		}
	default:
		values = []string{formatValue(v)}
	}
	return values
}

// fieldName returns the column name for f, preferring the json tag.
// Unexported and json:"-" fields are skipped.
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return strings.ToLower(f.Name), true
}

func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	return keys
}

func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}

	if v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		if t, ok := v.Interface().(*time.Time); ok {
			return formatValue(reflect.ValueOf(*t))
		}
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		v = v.Elem()
	}

	if v.CanInterface() {
		switch x := v.Interface().(type) {
		case time.Time:
			if x.IsZero() {
				return ""
			}
			return x.UTC().Format(time.RFC3339)
		case time.Duration:
			return x.String()
		case fmt.Stringer:
			return x.String()
		}
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// isTTY returns true if the file is a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
