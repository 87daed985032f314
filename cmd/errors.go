package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/turbot/reshard/internal/constants"
)

// toleranceExceededError is returned when a run completed but more files failed than allowed
type toleranceExceededError struct {
	failed    int64
	tolerance int
}

func (e *toleranceExceededError) Error() string {
	return fmt.Sprintf("%d files failed, more than the failure tolerance of %d", e.failed, e.tolerance)
}

func exitCodeForError(err error) int {
	var toleranceErr *toleranceExceededError
	switch {
	case err == nil:
		return constants.ExitCodeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return constants.ExitCodeCancelled
	case errors.As(err, &toleranceErr):
		return constants.ExitCodeToleranceExceeded
	}
	return constants.ExitCodeFatal
}

func setExitCodeForRunError(err error) {
	// if exit code already set, leave as is
	if exitCode != 0 || err == nil {
		return
	}
	exitCode = exitCodeForError(err)
}
