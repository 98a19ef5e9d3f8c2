package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// GenImageRef joins a registry host and path segments into an image reference.
func GenImageRef(host string, pathParams ...string) string {
	host = strings.TrimSuffix(host, "/")
	params := make([]string, 0, len(pathParams))
	for _, p := range pathParams {
		p = strings.Trim(p, "/")
		if p != "" {
			params = append(params, p)
		}
	}
	if len(params) == 0 {
		return host
	}
	return fmt.Sprintf("%s/%s", host, strings.Join(params, "/"))
}

// DockerLocator is the address singularity resolves for an image reference.
func DockerLocator(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	return "docker://" + ref
}

// TrimTransport strips a "docker://" style prefix from a locator.
func TrimTransport(locator string) string {
	if i := strings.Index(locator, "://"); i >= 0 {
		return locator[i+3:]
	}
	return locator
}

func GetSkipPrinter() *pterm.PrefixPrinter {
	return &pterm.PrefixPrinter{
		MessageStyle: &pterm.ThemeDefault.WarningMessageStyle,
		Prefix: pterm.Prefix{
			Style: &pterm.ThemeDefault.WarningPrefixStyle,
			Text:  "SKIPPED",
		},
		Writer: os.Stdout,
	}
}
