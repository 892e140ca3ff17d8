package service

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule failure so the HTTP layer can map it to a
// status code without inspecting messages.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindUnauthenticated
	KindForbidden
	KindInvitationInvalid
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindInvitationInvalid:
		return "invitation_invalid"
	default:
		return "internal"
	}
}

// Error is returned by every service operation that fails for a reason the
// caller can act on. Message is safe to show to clients; Err is not.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NotInvitedMessage is the only message callers see for an absent, used or
// expired invitation.
const NotInvitedMessage = "This email is not invited, please contact Admin"

func validation(msg string, fields ...string) error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

func notFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func unauthenticated(msg string) error { return &Error{Kind: KindUnauthenticated, Message: msg} }

func notInvited() error { return &Error{Kind: KindInvitationInvalid, Message: NotInvitedMessage} }

func internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// originate from a service rule.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a service error of kind k.
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}
