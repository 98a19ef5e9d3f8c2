package common

import (
	"fmt"
	"strings"

	"github.com/inhies/go-bytesize"
)

// GetSize renders a byte count for humans, e.g. "1.50GB".
func GetSize(sizeVal int64) string {
	size := bytesize.New(float64(sizeVal))
	return size.String()
}

// ParseSize parses "50GB", "512MB" or a plain byte count. Empty means 0.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.TrimLeft(s, "0123456789") == "" {
		s += "B"
	}
	b, err := bytesize.Parse(strings.ToUpper(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(b), nil
}
