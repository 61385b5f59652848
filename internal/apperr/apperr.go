package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/omnidesk/backend/internal/models"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindBadRequest
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func BadRequest(code, message string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "Internal error", Err: err}
}

func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// KindOf returns the taxonomy kind of err; anything not classified is Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DepartmentSelection is returned when an agent in several departments
// claims without choosing one. It is a BadRequest the caller can re-prompt on.
type DepartmentSelection struct {
	Available []models.DepartmentRef
}

func (d *DepartmentSelection) Error() string {
	return fmt.Sprintf("department selection required among %d departments", len(d.Available))
}

func RequiresDepartmentSelection(available []models.DepartmentRef) *Error {
	sel := &DepartmentSelection{Available: available}
	return &Error{
		Kind:    KindBadRequest,
		Code:    "DEPARTMENT_SELECTION_REQUIRED",
		Message: "Select a department to claim this attendance",
		Details: sel,
		Err:     sel,
	}
}

func AsDepartmentSelection(err error) (*DepartmentSelection, bool) {
	var sel *DepartmentSelection
	if errors.As(err, &sel) {
		return sel, true
	}
	return nil, false
}
