// package formatter renders the sync history as a terminal table, JSON, CSV or Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/shared"
)

// Format is an export format for the sync history.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatTable, FormatJSON, FormatCSV, FormatMarkdown}

// ParseFormat accepts a format name in any case; "md" is an alias for markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case "md":
		return FormatMarkdown, nil
	case FormatTable, FormatJSON, FormatCSV, FormatMarkdown:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

var csvHeaders = []string{
	"ID", "Source", "Mode", "Dry Run", "Status", "Started", "Duration",
	"Seen", "Matched", "Skipped", "Mutated", "Planned", "Errors", "Error",
}

// Export renders runs in the given format.
func Export(runs []*models.SyncRun, format Format) ([]byte, error) {
	switch format {
	case FormatTable:
		return []byte(RenderTable(runs) + "\n"), nil
	case FormatJSON:
		return ExportToJSON(runs)
	case FormatCSV:
		return ExportToCSV(runs)
	case FormatMarkdown:
		return ExportToMarkdown(runs)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// ExportToCSV writes one row per run with the columns of [csvHeaders]
func ExportToCSV(runs []*models.SyncRun) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		c := run.Counts()
		record := []string{
			run.ID(),
			run.Source(),
			run.Mode(),
			strconv.FormatBool(run.DryRun()),
			string(run.Status()),
			run.StartedAt().UTC().Format(time.RFC3339),
			strconv.FormatFloat(run.Duration().Seconds(), 'f', 2, 64),
			strconv.Itoa(c.Seen),
			strconv.Itoa(c.Matched),
			strconv.Itoa(c.Skipped),
			strconv.Itoa(c.Mutated),
			strconv.Itoa(c.Planned),
			strconv.Itoa(c.Errors),
			run.ErrorMessage(),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToJSON writes the runs as an indented array of [models.SyncRunView].
func ExportToJSON(runs []*models.SyncRun) ([]byte, error) {
	views := make([]models.SyncRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, run.View())
	}
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToMarkdown writes a summary line and a table of runs
func ExportToMarkdown(runs []*models.SyncRun) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Sync History\n\n")

	failed := 0
	for _, run := range runs {
		if run.Status() == models.RunFailed {
			failed++
		}
	}
	fmt.Fprintf(&buf, "**Runs**: %d (%d failed)\n\n", len(runs), failed)

	if len(runs) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| Started | Source | Mode | Status | Duration | Seen | Matched | Mutated | Errors |\n")
	buf.WriteString("|---|---|---|---|---|---|---|---|---|\n")
	for _, run := range runs {
		c := run.Counts()
		fmt.Fprintf(&buf, "| %s | %s | %s | %s | %s | %d | %d | %s | %d |\n",
			run.StartedAt().UTC().Format("2006-01-02 15:04"),
			run.Source(),
			run.Mode(),
			statusLabel(run),
			FormatDuration(run.Duration()),
			c.Seen, c.Matched, mutatedLabel(run), c.Errors,
		)
	}

	var errs []string
	for _, run := range runs {
		if msg := run.ErrorMessage(); msg != "" {
			errs = append(errs, fmt.Sprintf("- `%s`: %s\n", run.ID(), strings.ReplaceAll(msg, "\n", " ")))
		}
	}
	if len(errs) > 0 {
		buf.WriteString("\n## Errors\n\n")
		buf.WriteString(strings.Join(errs, ""))
	}

	return buf.Bytes(), nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#e5a00d"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failStyle   = cellStyle.Foreground(lipgloss.Color("#FF6B6B"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B6B6B"))
)

// RenderTable renders runs as a bordered terminal table. Failed rows are highlighted.
func RenderTable(runs []*models.SyncRun) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		c := run.Counts()
		rows = append(rows, []string{
			strconv.Itoa(run.Sequence()),
			run.StartedAt().Local().Format("2006-01-02 15:04"),
			run.Source(),
			run.Mode(),
			statusLabel(run),
			FormatDuration(run.Duration()),
			strconv.Itoa(c.Seen),
			strconv.Itoa(c.Matched),
			mutatedLabel(run),
			strconv.Itoa(c.Errors),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("#", "Started", "Source", "Mode", "Status", "Duration", "Seen", "Matched", "Mutated", "Errors").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(runs) && runs[row].Status() == models.RunFailed:
				return failStyle
			default:
				return cellStyle
			}
		})

	return t.Render()
}

// FormatDuration renders d as "1m05s" style text, or "-" for a run that has not finished.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

// WriteExport writes data to path with 0644 permissions.
func WriteExport(data []byte, path string) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func statusLabel(run *models.SyncRun) string {
	if run.DryRun() {
		return string(run.Status()) + " (dry run)"
	}
	return string(run.Status())
}

// mutatedLabel shows planned writes for dry runs, where nothing was mutated.
func mutatedLabel(run *models.SyncRun) string {
	c := run.Counts()
	if run.DryRun() {
		return fmt.Sprintf("%d planned", c.Planned)
	}
	return strconv.Itoa(c.Mutated)
}
