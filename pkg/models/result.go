package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionStatus is the outcome classification of one action invocation.
type ActionStatus string

const (
	ActionSuccess          ActionStatus = "success"
	ActionFailure          ActionStatus = "failure"
	ActionSkipped          ActionStatus = "skipped"
	ActionPending          ActionStatus = "pending"
	ActionPermissionDenied ActionStatus = "permission_denied"
)

// ActionResult records the outcome of a single action invocation.
type ActionResult struct {
	ID              string         `json:"id"`
	Status          ActionStatus   `json:"status"`
	Message         string         `json:"message"`
	Data            map[string]any `json:"data,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMs float64        `json:"execution_time_ms"`
	Timestamp       time.Time      `json:"timestamp"`
}

func newResult(status ActionStatus, message string) ActionResult {
	return ActionResult{
		ID:        uuid.NewString(),
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// SuccessResult builds a success outcome with optional result data.
func SuccessResult(message string, data map[string]any) ActionResult {
	r := newResult(ActionSuccess, message)
	r.Data = data
	return r
}

// FailureResult builds a failure outcome carrying the error text.
func FailureResult(message string, err error) ActionResult {
	r := newResult(ActionFailure, message)
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// SkippedResult marks an invocation that was gated off before running.
func SkippedResult(message string) ActionResult {
	return newResult(ActionSkipped, message)
}

// PendingResult marks an invocation a policy deferred for later
// execution.
func PendingResult(message string) ActionResult {
	return newResult(ActionPending, message)
}

// PermissionDeniedResult marks an invocation blocked by a missing permission.
func PermissionDeniedResult(permission string) ActionResult {
	r := newResult(ActionPermissionDenied, "permission not granted: "+permission)
	r.Error = "permission_denied"
	return r
}
