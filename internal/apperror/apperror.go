// Package apperror defines the error taxonomy shared by the service and
// transport layers.
//
// Services return *AppError values that wrap one of the sentinel kinds below.
// Handlers map the kind to an HTTP status with errors.Is, so the service layer
// never needs to know about status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrUpstream marks a failure talking to GitHub (network, timeout, 5xx, rate limit).
	ErrUpstream = errors.New("upstream unavailable")
	// ErrWebhookSetup marks a rejected webhook registration.
	ErrWebhookSetup = errors.New("webhook setup failed")
	// ErrStore marks an unreachable or failing credential store.
	ErrStore = errors.New("store unavailable")
	// ErrDelete marks a failed delete of a record that was found.
	ErrDelete = errors.New("delete failed")
	// ErrUnsupportedContentType marks an inbound body we cannot decode.
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Detail  string // Optional: upstream or diagnostic detail, safe to show
	Status  int    // Optional: upstream HTTP status that caused the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-chosen message.
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// AlreadyTracked reports a duplicate (repository, owner) track request.
// It is a conflict, but handlers answer it with 400 like other input errors.
func AlreadyTracked(repoFullName string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: "Repository is already being tracked",
		Field:   "repoUrl",
		Detail:  repoFullName,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// UpstreamUnavailable wraps a transient GitHub failure.
func UpstreamUnavailable(message string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrUpstream, cause),
		Message: message,
		Detail:  errString(cause),
	}
}

// WebhookSetupFailed carries the upstream status and message of a rejected
// hook creation so operators can diagnose it from the response.
func WebhookSetupFailed(status int, detail string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrWebhookSetup, cause),
		Message: "Failed to set up webhook",
		Detail:  detail,
		Status:  status,
	}
}

// StoreUnavailable wraps a failing store call.
func StoreUnavailable(message string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrStore, cause),
		Message: message,
		Detail:  errString(cause),
	}
}

// DeleteFailed reports that a found record could not be removed.
func DeleteFailed(resource string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrDelete, cause),
		Message: fmt.Sprintf("Failed to delete %s", resource),
		Detail:  errString(cause),
	}
}

// UnsupportedContentType reports an inbound body that is neither JSON nor form encoded.
func UnsupportedContentType(contentType string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedContentType,
		Message: fmt.Sprintf("Unsupported content type: %s", contentType),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
