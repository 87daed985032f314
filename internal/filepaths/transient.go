package filepaths

import (
	"errors"
	"syscall"
)

// IsTransientOpenError returns whether a failure to open or create a file was caused by temporary
// resource exhaustion or an interrupted call, and so is worth retrying
func IsTransientOpenError(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR)
}
