// Package output печатает результаты команд в виде таблицы, JSON или YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v2"
)

// FormatType формат вывода
type FormatType string

const (
	FormatTable FormatType = "table"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// ParseFormat разбирает формат вывода
func ParseFormat(s string) (FormatType, error) {
	switch FormatType(strings.ToLower(s)) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format: %q", s)
}

// RowStyle стиль строки таблицы
type RowStyle int

const (
	StyleDefault RowStyle = iota
	StyleSuccess
	StyleError
	StyleWarning
	StyleMuted
)

// TableRow строка таблицы
type TableRow struct {
	Cells []string
	Style RowStyle
}

// TableData данные для табличного вывода
type TableData struct {
	Headers []string
	Rows    []*TableRow
}

// NewTableData создает таблицу с заголовками
func NewTableData(headers ...string) *TableData {
	return &TableData{Headers: headers}
}

// AddRow добавляет строку
func (td *TableData) AddRow(cells ...string) {
	td.Rows = append(td.Rows, &TableRow{Cells: cells})
}

// AddStyledRow добавляет строку со стилем
func (td *TableData) AddStyledRow(style RowStyle, cells ...string) {
	td.Rows = append(td.Rows, &TableRow{Cells: cells, Style: style})
}

// Render выравнивает таблицу по колонкам
func (td *TableData) Render(colors bool) string {
	if len(td.Rows) == 0 {
		return "No data found\n"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	// Escape коды не должны влиять на ширину колонок, поэтому цвет ставится на всю строку
	fmt.Fprintln(w, strings.Join(td.Headers, "\t"))
	separators := make([]string, len(td.Headers))
	for i, h := range td.Headers {
		separators[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(separators, "\t"))
	for _, row := range td.Rows {
		fmt.Fprintln(w, strings.Join(row.Cells, "\t"))
	}
	w.Flush()

	if !colors {
		return b.String()
	}

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	for i := range lines {
		switch {
		case i == 0:
			lines[i] = paint("1;34", lines[i])
		case i == 1:
			lines[i] = paint("90", lines[i])
		default:
			lines[i] = paintStyle(td.Rows[i-2].Style, lines[i])
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func paint(code, s string) string {
	return "\033[" + code + "m" + s + "\033[0m"
}

func paintStyle(style RowStyle, s string) string {
	switch style {
	case StyleSuccess:
		return paint("32", s)
	case StyleError:
		return paint("31", s)
	case StyleWarning:
		return paint("33", s)
	case StyleMuted:
		return paint("90", s)
	}
	return s
}

// Tabular данные, которые умеют показать себя таблицей
type Tabular interface {
	Table() *TableData
}

// Printer печатает результаты команд
type Printer struct {
	out    io.Writer
	format FormatType
	colors bool
}

// NewPrinter создает Printer
func NewPrinter(out io.Writer, format FormatType, colors bool) *Printer {
	if format == "" {
		format = FormatTable
	}
	return &Printer{out: out, format: format, colors: colors}
}

// Format текущий формат
func (p *Printer) Format() FormatType {
	return p.format
}

// Print печатает данные. В табличном режиме используется Table(),
// если данные его реализуют, иначе YAML.
func (p *Printer) Print(data interface{}) error {
	switch p.format {
	case FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(p.out, string(out))
		return err
	case FormatYAML:
		return p.printYAML(data)
	}

	if t, ok := data.(Tabular); ok {
		_, err := io.WriteString(p.out, t.Table().Render(p.colors))
		return err
	}
	if t, ok := data.(*TableData); ok {
		_, err := io.WriteString(p.out, t.Render(p.colors))
		return err
	}
	return p.printYAML(data)
}

func (p *Printer) printYAML(data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = p.out.Write(out)
	return err
}

// Message печатает строку только в табличном режиме,
// чтобы не ломать машиночитаемый вывод
func (p *Printer) Message(format string, args ...interface{}) {
	if p.format != FormatTable {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if p.colors {
		msg = paint("32", msg)
	}
	fmt.Fprintln(p.out, msg)
}

// Truncate обрезает строку до max символов
func Truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max || max < 2 {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// OrDash возвращает значение или "-" для пустого
func OrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// YesNo булево значение для таблицы
func YesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
