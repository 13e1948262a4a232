package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies precondition failures raised by the task board and
// the route validator. Kinds are stable API surface: the HTTP layer maps
// them to status codes and clients switch on the code string.
type ErrorKind string

// Precondition error kinds.
const (
	KindInvalidRole             ErrorKind = "INVALID_ROLE"
	KindUnacceptedType          ErrorKind = "UNACCEPTED_TYPE"
	KindRouteForbidden          ErrorKind = "ROUTE_FORBIDDEN"
	KindGroupFull               ErrorKind = "GROUP_FULL"
	KindDepthExceeded           ErrorKind = "DEPTH_EXCEEDED"
	KindCycleLimit              ErrorKind = "CYCLE_LIMIT"
	KindCycleInDependency       ErrorKind = "CYCLE_IN_DEPENDENCY"
	KindTaskNotFound            ErrorKind = "TASK_NOT_FOUND"
	KindGroupNotFound           ErrorKind = "GROUP_NOT_FOUND"
	KindIllegalStatusTransition ErrorKind = "ILLEGAL_STATUS_TRANSITION"
)

// PreconditionError is a rejected operation: the caller violated a task-graph
// or routing invariant. Never retried automatically.
type PreconditionError struct {
	Kind    ErrorKind
	Message string
	Ctx     map[string]string
}

func (e *PreconditionError) Error() string { return e.Message }

// ErrorCode returns the stable code for this error.
func (e *PreconditionError) ErrorCode() string { return string(e.Kind) }

// Context returns structured detail for logs and API responses.
func (e *PreconditionError) Context() map[string]string { return e.Ctx }

// HTTPStatus maps the kind to its API status code.
func (e *PreconditionError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRole, KindUnacceptedType:
		return http.StatusBadRequest
	case KindRouteForbidden:
		return http.StatusForbidden
	case KindTaskNotFound, KindGroupNotFound:
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

// Is matches two precondition errors by kind, so callers can use
// errors.Is(err, models.NewPreconditionError(kind, "", nil)) style sentinels.
func (e *PreconditionError) Is(target error) bool {
	var pe *PreconditionError
	if !errors.As(target, &pe) {
		return false
	}
	return e.Kind == pe.Kind
}

// NewPreconditionError builds a precondition error with optional context.
func NewPreconditionError(kind ErrorKind, message string, ctx map[string]string) *PreconditionError {
	return &PreconditionError{Kind: kind, Message: message, Ctx: ctx}
}

// IsKind reports whether err is a PreconditionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PreconditionError
	return errors.As(err, &pe) && pe.Kind == kind
}

// ErrTaskNotFound builds the canonical not-found error for a task id.
func ErrTaskNotFound(taskID string) *PreconditionError {
	return &PreconditionError{
		Kind:    KindTaskNotFound,
		Message: fmt.Sprintf("task not found: %s", taskID),
		Ctx:     map[string]string{"task_id": taskID},
	}
}

// ErrGroupNotFound builds the canonical not-found error for a group id.
func ErrGroupNotFound(groupID string) *PreconditionError {
	return &PreconditionError{
		Kind:    KindGroupNotFound,
		Message: fmt.Sprintf("group not found: %s", groupID),
		Ctx:     map[string]string{"group_id": groupID},
	}
}

// ErrIllegalTransition builds the canonical illegal-transition error.
func ErrIllegalTransition(taskID string, from TaskStatus, to TaskStatus) *PreconditionError {
	return &PreconditionError{
		Kind:    KindIllegalStatusTransition,
		Message: fmt.Sprintf("task %s: illegal transition %s -> %s", taskID, from, to),
		Ctx: map[string]string{
			"task_id": taskID,
			"from":    string(from),
			"to":      string(to),
		},
	}
}
