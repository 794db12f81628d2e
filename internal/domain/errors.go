package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindInvalidState Kind = "INVALID_STATE"
	KindExpired      Kind = "EXPIRED"
)

// Error is the typed failure returned by every engine command.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is matches any *Error with the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrExpired      = &Error{Kind: KindExpired}
)

func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf("%s %q not found", entity, id)}
}

func Unauthorized(actor, op string) error {
	return &Error{Kind: KindUnauthorized, Reason: fmt.Sprintf("user %q may not %s", actor, op)}
}

func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Reason: fmt.Sprintf(format, args...)}
}

func Expired(requestID string) error {
	return &Error{Kind: KindExpired, Reason: fmt.Sprintf("connection request %q has expired", requestID)}
}

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
