package progress

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/galaxyproject/depotsync/internal/style"
)

// StyledReporter implements Reporter with lipgloss-styled lines, one per item,
// coloured by final status.
type StyledReporter struct {
	mu    sync.Mutex
	total int
	done  int
}

// NewStyledReporter creates a reporter with lipgloss-styled output.
func NewStyledReporter() *StyledReporter {
	return &StyledReporter{}
}

// NewAutoReporter returns a BarReporter when a redrawing bar is possible, a
// StyledReporter when only colours are, and the plain ConsoleReporter otherwise.
func NewAutoReporter(progressEnabled bool) Reporter {
	switch {
	case progressEnabled && term.IsTerminal(int(os.Stdout.Fd())):
		return NewBarReporter()
	case style.Enabled:
		return NewStyledReporter()
	default:
		return NewConsoleReporter()
	}
}

var (
	startStyle   = lipgloss.NewStyle().Bold(true).Foreground(style.Cyan)
	stepStyle    = lipgloss.NewStyle().Foreground(style.Dim).PaddingLeft(2)
	errorStyle   = lipgloss.NewStyle().Foreground(style.Red).Bold(true).PaddingLeft(2)
	skipStyle    = lipgloss.NewStyle().Foreground(style.Yellow).PaddingLeft(2)
	successStyle = lipgloss.NewStyle().Foreground(style.Green).Bold(true).PaddingLeft(2)
)

func (r *StyledReporter) Start(title string, total int) {
	r.mu.Lock()
	r.total, r.done = total, 0
	r.mu.Unlock()
	fmt.Println(startStyle.Render(fmt.Sprintf("%s: %d images", title, total)))
}

func (r *StyledReporter) Done(name string, status string) {
	r.mu.Lock()
	r.done++
	line := fmt.Sprintf("[%d/%d] %s", r.done, r.total, name)
	r.mu.Unlock()

	switch status {
	case "Succeeded":
		fmt.Println(successStyle.Render("✓ " + line))
	case "Abandoned":
		fmt.Println(errorStyle.Render("✗ " + line))
	case "Skipped":
		fmt.Println(skipStyle.Render("- " + line))
	default:
		fmt.Println(stepStyle.Render("→ " + line + " " + status))
	}
}

func (r *StyledReporter) Message(message string) {
	fmt.Println(stepStyle.Render("→ " + message))
}

func (r *StyledReporter) End() {}
