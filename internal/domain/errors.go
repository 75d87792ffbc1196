package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// PreconditionError reports a call that cannot proceed with the given input or
// state. Op names the operation, Reason which precondition failed.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e PreconditionError) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return fmt.Sprintf("failed to %s: %s", e.Op, e.Reason)
}

// Is matches any PreconditionError when the target carries no reason, and the
// same reason otherwise.
func (e PreconditionError) Is(target error) bool {
	var reason string
	switch t := target.(type) {
	case PreconditionError:
		reason = t.Reason
	case *PreconditionError:
		reason = t.Reason
	default:
		return false
	}
	return reason == "" || reason == e.Reason
}

// With returns a copy of e bound to the operation op.
func (e PreconditionError) With(op string) PreconditionError {
	e.Op = op
	return e
}

var (
	ErrPrecondition       = PreconditionError{}
	ErrNoProfile          = PreconditionError{Reason: "no profile record exists"}
	ErrNoSubscription     = PreconditionError{Reason: "no subscription record exists"}
	ErrRequesterRequired  = PreconditionError{Reason: "a requester is required"}
	ErrSubjectRequired    = PreconditionError{Reason: "a vote subject is required"}
	ErrAuthorRequired     = PreconditionError{Reason: "an author is required"}
	ErrTextRequired       = PreconditionError{Reason: "text is required"}
	ErrNameRequired       = PreconditionError{Reason: "a name is required"}
	ErrGizmoRequired      = PreconditionError{Reason: "a gizmo url is required"}
	ErrUnsupportedVariant = PreconditionError{Reason: "not supported by this index variant"}
	ErrUnsupportedFlag    = PreconditionError{Reason: "enrichment flag not supported for this collection"}
	ErrNotOwner           = PreconditionError{Reason: "record is not owned by the archive"}
	ErrNotRetractable     = PreconditionError{Reason: "records of this collection cannot be retracted"}
	ErrInvalidReference   = PreconditionError{Reason: "invalid archive or record reference"}
)
