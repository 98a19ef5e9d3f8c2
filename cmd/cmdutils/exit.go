package cmdutils

import (
	"fmt"

	"github.com/galaxyproject/depotsync/module/mirror"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

// ExitError carries the process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the status the process should exit with for err.
func ExitCode(err error) int {
	if err == nil {
		return mirror.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, errors.ErrFatal) {
		return mirror.ExitFatal
	}
	return mirror.ExitError
}
