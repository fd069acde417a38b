package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/funcdeck/funcdeck"
	"github.com/funcdeck/funcdeck/client"
)

var (
	successText = color.New(color.FgGreen).SprintFunc()
	failText    = color.New(color.FgRed).SprintFunc()
	pendingText = color.New(color.FgYellow).SprintFunc()
	dimText     = color.New(color.Faint).SprintFunc()
)

// colorStatus renders a canonical status with its conventional color.
func colorStatus(status funcdeck.Status) string {
	switch status {
	case funcdeck.StatusSuccess:
		return successText(string(status))
	case funcdeck.StatusFail:
		return failText(string(status))
	case funcdeck.StatusQueued, funcdeck.StatusProcessing:
		return pendingText(string(status))
	default:
		return string(status)
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderFunctionTable writes the registry listing.
func renderFunctionTable(w io.Writer, functions []client.FunctionSummary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Runtime", "Description", "Created"})
	for _, fn := range functions {
		created := ""
		if fn.CreatedAt != nil {
			created = fn.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{fn.ID, fn.Name, fn.Runtime, fn.Description, created})
	}
	t.Render()
}

// renderHistoryTable writes the invocation history listing, newest first.
func renderHistoryTable(w io.Writer, records []client.InvocationRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Status", "Duration", "Invoked", "Error"})
	for _, rec := range records {
		invoked := ""
		if rec.InvokedAt != nil {
			invoked = rec.InvokedAt.Local().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{
			rec.ID,
			colorStatus(funcdeck.NormalizeStatus(rec.Status)),
			formatDuration(rec.DurationMs),
			invoked,
			rec.ErrorMessage,
		})
	}
	t.Render()
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return (time.Duration(ms) * time.Millisecond).String()
}

// printJSON pretty-prints a raw JSON document.
func printJSON(w io.Writer, raw json.RawMessage) {
	fmt.Fprintln(w, formatJSON(raw))
}

func formatJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return dimText("(no result)")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
