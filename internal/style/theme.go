// Package style holds the colours shared by tables, progress lines and help
// output. Call Init once the terminal is known.
package style

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	Cyan   = lipgloss.Color("#00B4D8")
	Green  = lipgloss.Color("#22C55E")
	Yellow = lipgloss.Color("#FACC15")
	Red    = lipgloss.Color("#EF4444")
	Dim    = lipgloss.Color("#6B7280")
	Subtle = lipgloss.Color("#374151")
)

var (
	Success = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(Yellow)
	Error   = lipgloss.NewStyle().Foreground(Red).Bold(true)
	DimText = lipgloss.NewStyle().Foreground(Dim)
)

// Enabled is false when output must stay plain text.
var Enabled = true

func Init(colorEnabled bool) {
	Enabled = colorEnabled
	if !colorEnabled {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// Status colours a work item status: green when it succeeded, red when it was
// abandoned, yellow when skipped.
func Status(status string) string {
	if !Enabled {
		return status
	}
	switch status {
	case "Succeeded":
		return Success.Render(status)
	case "Abandoned":
		return Error.Render(status)
	case "Skipped":
		return Warning.Render(status)
	default:
		return DimText.Render(status)
	}
}
