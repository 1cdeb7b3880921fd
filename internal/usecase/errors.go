package usecase

import (
	"errors"
	"fmt"
)

// ErrBuildBusy marks a refused run. Operations report busy through
// BuildReport.Status; the HTTP layer maps it to a conflict.
var ErrBuildBusy = errors.New("pattern build in progress")

// BuildError is a systemic failure that aborted a whole pipeline run.
type BuildError struct {
	Op     string
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
