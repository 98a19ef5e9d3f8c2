package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gobwas/glob"
)

/* Denylist entries come in two forms:
- a plain entry skips every name starting with it ("bioconductor-" skips all bioconductor builds)
- an entry containing * is a glob matched against the whole name ("*--py27*")
*/

// Denylist decides which source names are never mirrored.
type Denylist struct {
	prefixes []string
	globs    []glob.Glob
	raw      []string
}

// NewDenylist compiles the given entries. Blank entries and # comments are ignored.
func NewDenylist(entries ...string) (*Denylist, error) {
	d := &Denylist{}
	for _, entry := range entries {
		if err := d.add(entry); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// LoadDenylist reads one entry per line from path and adds the extra entries.
// An empty path yields a list containing only the extra entries.
func LoadDenylist(path string, extra ...string) (*Denylist, error) {
	d, err := NewDenylist(extra...)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return d, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open denylist: %w", err)
	}
	defer f.Close()
	if err := d.read(f); err != nil {
		return nil, fmt.Errorf("failed to read denylist %s: %w", path, err)
	}
	return d, nil
}

func (d *Denylist) read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := d.add(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (d *Denylist) add(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" || strings.HasPrefix(entry, "#") {
		return nil
	}
	if strings.Contains(entry, "*") {
		g, err := glob.Compile(entry)
		if err != nil {
			return fmt.Errorf("invalid denylist pattern %q: %w", entry, err)
		}
		d.globs = append(d.globs, g)
	} else {
		d.prefixes = append(d.prefixes, entry)
	}
	d.raw = append(d.raw, entry)
	return nil
}

// Denied reports whether name matches any entry.
func (d *Denylist) Denied(name string) bool {
	if d == nil {
		return false
	}
	for _, p := range d.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	for _, g := range d.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (d *Denylist) Len() int {
	if d == nil {
		return 0
	}
	return len(d.raw)
}

// HasAnyPrefix reports whether name starts with one of prefixes.
func HasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
