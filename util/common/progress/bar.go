package progress

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"
)

// BarReporter draws a pterm progress bar that advances once per finished item.
type BarReporter struct {
	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
}

func NewBarReporter() *BarReporter {
	return &BarReporter{}
}

func (r *BarReporter) Start(title string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if total <= 0 {
		return
	}
	bar := pterm.DefaultProgressbar.
		WithTitle(title).
		WithTotal(total).
		WithRemoveWhenDone(false)
	r.bar, _ = bar.Start()
}

func (r *BarReporter) Done(name string, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return
	}
	r.bar.UpdateTitle(fmt.Sprintf("%s %s", name, status))
	r.bar.Increment()
}

func (r *BarReporter) Message(message string) {
	pterm.Info.Println(message)
}

func (r *BarReporter) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_, _ = r.bar.Stop()
		r.bar = nil
	}
}
