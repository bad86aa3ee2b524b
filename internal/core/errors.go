package core

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskDisabled       = errors.New("task disabled")
	ErrNoPathsConfigured  = errors.New("no paths configured")
	ErrNoMatchingFiles    = errors.New("no matching files")
	ErrListingUnsupported = errors.New("directory listing is not supported on this host")
)

// ValidationError reports a trigger specification that cannot be evaluated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// PathScanError aborts a run when one configured path cannot be listed.
type PathScanError struct {
	Path string
	Err  error
}

func (e *PathScanError) Error() string {
	return fmt.Sprintf("scan path %s: %v", e.Path, e.Err)
}

func (e *PathScanError) Unwrap() error { return e.Err }

// FileSyncError is scoped to one file and never aborts a run.
type FileSyncError struct {
	File     string
	Attempts int
	Err      error
}

func (e *FileSyncError) Error() string {
	return fmt.Sprintf("sync %s failed after %d attempt(s): %v", e.File, e.Attempts, e.Err)
}

func (e *FileSyncError) Unwrap() error { return e.Err }

// TargetNotFoundError is returned when a task's template cannot be resolved.
type TargetNotFoundError struct {
	TemplateID string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("sync target not found for template %q", e.TemplateID)
}
