package driver

import "fmt"

// The driver separates "the driver could not perform the operation" (the
// typed errors below) from "the submitted workload failed" (AppState.FAILED,
// observable only through status polling).

// ValidationError indicates an application failed structural validation
// before submission. It never reaches a backend.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid application: %s", e.Msg)
}

// UnknownAppError indicates an operation referenced an app id the session or
// backend has no record of: never submitted, or since evicted.
type UnknownAppError struct {
	AppID string
}

func (e *UnknownAppError) Error() string {
	return fmt.Sprintf("unknown app id: %s", e.AppID)
}

// AppNotReRunnableError indicates an attempt to run an application obtained
// via Attach. Attached applications are read-only handles.
type AppNotReRunnableError struct {
	AppID string
}

func (e *AppNotReRunnableError) Error() string {
	return fmt.Sprintf("app %s is not re-runnable: attached applications are read-only handles", e.AppID)
}

// ImageFetchError indicates a backend could not resolve an image reference.
// Submission is all-or-nothing: a fetch failure aborts before any process is
// spawned.
type ImageFetchError struct {
	Image string
	Cause error
}

func (e *ImageFetchError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("cannot fetch image %q", e.Image)
	}
	return fmt.Sprintf("cannot fetch image %q: %s", e.Image, e.Cause)
}

func (e *ImageFetchError) Unwrap() error {
	return e.Cause
}
