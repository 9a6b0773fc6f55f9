package combat

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a combat operation failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindInvalidState
	KindValidation
	KindConflict
	KindPermissionDenied
	KindNotInHand
	KindNoActionToUndo
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindValidation:
		return "VALIDATION"
	case KindConflict:
		return "CONFLICT"
	case KindPermissionDenied:
		return "PERMISSION_DENIED"
	case KindNotInHand:
		return "NOT_IN_HAND"
	case KindNoActionToUndo:
		return "NO_ACTION_TO_UNDO"
	default:
		return "UNKNOWN"
	}
}

// Error is the typed error returned by all combat operations. Resource and
// ID identify the offending entity so callers can render a precise message.
type Error struct {
	Kind     ErrorKind
	Resource string
	ID       string
	Msg      string
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.ID != "":
		return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Resource, e.ID, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Resource, e.Msg)
	case e.ID != "":
		return fmt.Sprintf("%s: %s %s", e.Kind, e.Resource, e.ID)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Resource)
	}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func notFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, ID: id}
}

func invalidState(resource, id, msg string) *Error {
	return &Error{Kind: KindInvalidState, Resource: resource, ID: id, Msg: msg}
}

func validation(resource, id, msg string) *Error {
	return &Error{Kind: KindValidation, Resource: resource, ID: id, Msg: msg}
}

func conflict(resource, id, msg string) *Error {
	return &Error{Kind: KindConflict, Resource: resource, ID: id, Msg: msg}
}

func permissionDenied(resource, id, msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Resource: resource, ID: id, Msg: msg}
}

func notInHand(deckID, cardID string) *Error {
	return &Error{Kind: KindNotInHand, Resource: "card", ID: cardID, Msg: "not in hand of deck " + deckID}
}

func noActionToUndo(deckID string) *Error {
	return &Error{Kind: KindNoActionToUndo, Resource: "deck", ID: deckID}
}
