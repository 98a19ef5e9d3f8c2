// Package terminal decides how much decoration the output may carry.
package terminal

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ciVars are set by the CI systems depotsync usually runs under.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "JENKINS_URL", "GITLAB_CI", "BUILDKITE", "DRONE"}

// Info describes the terminal the process writes to.
type Info struct {
	IsTerminal       bool
	StderrIsTerminal bool
	ColorEnabled     bool
	// ProgressEnabled allows a redrawing progress bar on stdout.
	ProgressEnabled bool
	ForceJSON       bool
}

// Detect inspects stdout, stderr and the environment. noColor is the
// --no-color flag and forceJSON is true for --format json.
func Detect(noColor, forceJSON bool) Info {
	stdout := term.IsTerminal(int(os.Stdout.Fd()))
	info := Info{
		IsTerminal:       stdout,
		StderrIsTerminal: term.IsTerminal(int(os.Stderr.Fd())),
		ForceJSON:        forceJSON,
	}
	// https://no-color.org/
	info.ColorEnabled = stdout && !noColor && os.Getenv("NO_COLOR") == ""
	info.ProgressEnabled = stdout && !forceJSON && !IsCI() && !IsDumb()
	return info
}

// IsDumb reports a terminal without cursor control.
func IsDumb() bool {
	t := strings.ToLower(os.Getenv("TERM"))
	return t == "" || t == "dumb"
}

func IsCI() bool {
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
