package shared

import "errors"

// Kind classifies engine errors for callers that need to branch on the category.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindState       Kind = "STATE"
	KindConsistency Kind = "CONSISTENCY"
	KindNotFound    Kind = "NOT_FOUND"
	KindForbidden   Kind = "FORBIDDEN"
	KindInternal    Kind = "INTERNAL"
)

var (
	// ErrValidation indicates malformed input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates an action not permitted from the current status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrConsistency indicates a cross-entity rule violation such as insufficient stock.
	ErrConsistency = errors.New("consistency violation")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller's role lacks the capability.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates no caller identity was supplied.
	ErrUnauthorized = errors.New("unauthorized")
)

// KindOf reports the taxonomy root wrapped by err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidState):
		return KindState
	case errors.Is(err, ErrConsistency):
		return KindConsistency
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized):
		return KindForbidden
	default:
		return KindInternal
	}
}
