// Package error_helpers writes errors and warnings to the terminal in a consistent format.
package error_helpers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/turbot/reshard/internal/failures"
)

// ShowError writes err to w. A cancellation is reported as such rather than as an error.
func ShowError(w io.Writer, err error) {
	if err == nil {
		return
	}
	if IsCancelledError(err) {
		_, _ = fmt.Fprintln(w, "Run cancelled.")
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %v\n", color.RedString("Error"), TransformError(err))
}

// ShowWarning writes warning to w
func ShowWarning(w io.Writer, warning string) {
	if len(warning) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %v\n", color.YellowString("Warning"), warning)
}

// TransformError joins the lines of a multi-error and, for a file failure, leads with the path
func TransformError(err error) error {
	if err == nil {
		return nil
	}
	var fileErr *failures.FileError
	if errors.As(err, &fileErr) && fileErr.Err != nil {
		return fmt.Errorf("%s: %s", fileErr.Path, strings.TrimSpace(fileErr.Err.Error()))
	}
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	return errors.New(strings.Join(lines, "; "))
}

func IsCancelledError(err error) bool {
	return errors.Is(err, context.Canceled)
}
