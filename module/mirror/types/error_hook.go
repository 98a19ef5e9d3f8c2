package types

import (
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

// ErrorHook is a zerolog hook that echoes errors to the terminal using pterm,
// so they stay visible when the structured log goes to a file or is disabled.
type ErrorHook struct{}

// Run implements the zerolog.Hook interface
func (h ErrorHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level >= zerolog.ErrorLevel && level < zerolog.NoLevel {
		pterm.Error.Println(msg)
	}
}
