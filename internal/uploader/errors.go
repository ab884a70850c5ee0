package uploader

import (
	"fmt"
)

// ExitUsage is the process exit code for usage errors.
const ExitUsage = 2

// UsageError reports bad arguments or missing input paths. Nothing has
// been loaded or uploaded when one is returned.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Usagef builds a UsageError from a format string.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// Stage names the step of Run that failed fatally.
type Stage string

// Fatal stages. A failed first upload is not a stage: it is the one
// recoverable case and never leaves Run.
const (
	StageLoad    Stage = "load"
	StageRefresh Stage = "refresh"
	StagePersist Stage = "persist"
	StageRetry   Stage = "retry"
)

// FatalError is an unrecoverable failure from the session. Err is the
// client error, so errors.Is against garmin sentinels still works.
type FatalError struct {
	Stage Stage
	Err   error
}

func (e *FatalError) Error() string {
	switch e.Stage {
	case StageLoad:
		return fmt.Sprintf("loading session: %v", e.Err)
	case StageRefresh:
		return fmt.Sprintf("refreshing token: %v", e.Err)
	case StagePersist:
		return fmt.Sprintf("saving refreshed token: %v", e.Err)
	default:
		return fmt.Sprintf("upload retry failed: %v", e.Err)
	}
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
