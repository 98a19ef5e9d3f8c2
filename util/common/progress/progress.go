// Package progress reports how a run advances, one line or bar tick per image.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Reporter receives run progress. Done is called from the scheduler goroutine
// only, but implementations must not assume it.
type Reporter interface {
	Start(title string, total int)
	// Done reports that one item reached a final status
	Done(name string, status string)
	// Message reports a line that is not tied to an item
	Message(message string)
	End()
}

// ConsoleReporter prints plain lines, suitable for CI logs.
type ConsoleReporter struct {
	mu    sync.Mutex
	out   io.Writer
	total int
	done  int
}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

func (r *ConsoleReporter) Start(title string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total, r.done = total, 0
	fmt.Fprintf(r.out, "%s: %d images\n", title, total)
}

func (r *ConsoleReporter) Done(name string, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	fmt.Fprintf(r.out, "[%d/%d] %s %s\n", r.done, r.total, name, status)
}

func (r *ConsoleReporter) Message(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, message)
}

func (r *ConsoleReporter) End() {}

type NopReporter struct{}

func NewNopReporter() *NopReporter {
	return &NopReporter{}
}

func (r *NopReporter) Start(title string, total int)   {}
func (r *NopReporter) Done(name string, status string) {}
func (r *NopReporter) Message(message string)          {}
func (r *NopReporter) End()                            {}
