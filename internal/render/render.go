// Package render prints query results and interaction history for the terminal.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/history"
	"sqlgate/cli/internal/sqlexec"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Format names an output format.
type Format string

const (
	Table Format = "table"
	JSON  Format = "json"
	CSV   Format = "csv"
)

// ParseFormat validates a --format value. Empty means Table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return Table, nil
	case Table, JSON, CSV:
		return f, nil
	}
	return "", errors.New(errors.ConfigInvalid, fmt.Sprintf("unknown format %q (want table, json or csv)", s))
}

// Result writes res in the given format.
func Result(w io.Writer, res *sqlexec.Result, format Format) error {
	if res == nil {
		res = &sqlexec.Result{}
	}
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case CSV:
		return renderCSV(w, res)
	default:
		return renderTable(w, res)
	}
}

func renderTable(w io.Writer, res *sqlexec.Result) error {
	if len(res.Columns) == 0 {
		_, _ = fmt.Fprintf(w, "(%d rows affected)\n", res.RowsAffected)
		return nil
	}
	if len(res.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(res.Columns))
	for i, col := range res.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, r := range res.Rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}
	t.Render()

	suffix := ""
	if res.Truncated {
		suffix = ", truncated"
	}
	_, _ = fmt.Fprintf(w, "(%d rows%s)\n", len(res.Rows), suffix)
	return nil
}

func renderCSV(w io.Writer, res *sqlexec.Result) error {
	cols := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		cols[i] = escapeCSV(c)
	}
	if _, err := fmt.Fprintln(w, strings.Join(cols, ",")); err != nil {
		return err
	}
	for _, r := range res.Rows {
		values := make([]string, len(r))
		for i, v := range r {
			values[i] = escapeCSV(formatValue(v))
		}
		if _, err := fmt.Fprintln(w, strings.Join(values, ",")); err != nil {
			return err
		}
	}
	return nil
}

// formatValue prints a cell the way the JSON payload shows it.
func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", sqlexec.DisplayValue(v))
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// History writes records as a numbered table, oldest first.
func History(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No history.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "", "Time", "Question", "SQL", "Answer"})
	for i, r := range records {
		icon := "✅"
		if r.Failed() {
			icon = "❌"
		}
		t.AppendRow(table.Row{
			i + 1,
			icon,
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Question,
			history.Ellipsis(r.SQL, 80),
			history.Ellipsis(oneLine(r.Answer), 100),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Question", WidthMax: 40},
		{Name: "SQL", WidthMax: 50},
		{Name: "Answer", WidthMax: 60},
	})
	t.Render()
}

// Stats writes the usage summary.
func Stats(w io.Writer, s history.Stats, maxRows int, timeoutSeconds float64) {
	if s.Total == 0 {
		_, _ = fmt.Fprintln(w, "No queries yet.")
		return
	}
	failedRate := 100 - s.SuccessRate()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("📊 Query Statistics")
	t.AppendRows([]table.Row{
		{"Total Queries", s.Total},
		{"Successful", fmt.Sprintf("%d (%.1f%%)", s.Successful, s.SuccessRate())},
		{"Failed", fmt.Sprintf("%d (%.1f%%)", s.Failed, failedRate)},
		{"Max Rows Limit", maxRows},
		{"Query Timeout", fmt.Sprintf("%gs", timeoutSeconds)},
	})
	t.Render()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
