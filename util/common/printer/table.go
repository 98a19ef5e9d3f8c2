package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"

	"github.com/galaxyproject/depotsync/internal/style"
)

// Out receives everything the printer renders.
var Out io.Writer = os.Stdout

// Format selects how command results are rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat accepts "table" and "json", case-insensitively. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// ColumnMapping orders and names the printed columns as {"json_field", "Header"}
// pairs. Without one every field is printed under its JSON name, sorted.
type ColumnMapping [][2]string

// TableOptions provides configuration for table output
type TableOptions struct {
	ColumnMapping ColumnMapping
	// ShowTotal prints the row count under the table
	ShowTotal bool
}

// DefaultTableOptions returns default configuration for table printing
func DefaultTableOptions() TableOptions {
	return TableOptions{ShowTotal: true}
}

// parseTableData turns a JSON array of objects into headers and string cells.
// Missing fields print as "-".
func parseTableData(data []byte, mapping ColumnMapping) ([]string, [][]string, error) {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("parse json: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	if len(mapping) == 0 {
		for field := range records[0] {
			mapping = append(mapping, [2]string{field, field})
		}
		sort.Slice(mapping, func(i, j int) bool { return mapping[i][0] < mapping[j][0] })
	}

	headers := make([]string, len(mapping))
	for i, c := range mapping {
		headers[i] = c[1]
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(mapping))
		for i, c := range mapping {
			if v, ok := rec[c[0]]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			} else {
				row[i] = "-"
			}
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func renderStyledTable(headers []string, rows [][]string) {
	header := lipgloss.NewStyle().Bold(true).Foreground(style.Cyan).Padding(0, 1)
	even := lipgloss.NewStyle().Padding(0, 1)
	odd := even.Foreground(style.Dim)

	t := lgtable.New().
		Headers(headers...).
		Rows(rows...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(style.Subtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return header
			case row%2 == 0:
				return even
			default:
				return odd
			}
		})
	fmt.Fprintln(Out, t.Render())
}

// renderPtermTable is used when colour is off, e.g. in CI logs.
func renderPtermTable(headers []string, rows [][]string) error {
	data := append(pterm.TableData{headers}, rows...)
	rendered, err := pterm.DefaultTable.WithHasHeader().WithBoxed(true).WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(Out, rendered)
	return err
}

// PrintTableWithOptions prints a slice of structs as a table, styled with
// lipgloss when colour is enabled.
func PrintTableWithOptions(res any, options TableOptions) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal data to JSON: %w", err)
	}
	headers, rows, err := parseTableData(data, options.ColumnMapping)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse table data")
		return err
	}
	if headers == nil {
		return nil
	}

	if style.Enabled {
		renderStyledTable(headers, rows)
	} else if err := renderPtermTable(headers, rows); err != nil {
		log.Error().Err(err).Msg("Failed to render table")
		return err
	}

	if options.ShowTotal {
		total := fmt.Sprintf("Total: %d", len(rows))
		if style.Enabled {
			total = style.DimText.Render(total)
		}
		fmt.Fprintln(Out, total)
	}
	return nil
}

// PrintJSON writes res as indented JSON.
func PrintJSON(res any) error {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Print renders res in the requested format.
func Print(format Format, res any, options TableOptions) error {
	if format == FormatJSON {
		return PrintJSON(res)
	}
	return PrintTableWithOptions(res, options)
}
