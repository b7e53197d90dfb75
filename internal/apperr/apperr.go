// README: Error taxonomy shared by services and the HTTP layer.
//
// Every rejection carries a Kind (how callers should react) and a stable Code
// (which rule was violated). Modules declare their sentinels with the
// constructors below; errors.Is matches on Kind+Code so copies produced by
// WithField still compare equal to the sentinel.
package apperr

import (
	"errors"
	"maps"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// WithField returns a copy of e carrying field-level detail.
func (e *Error) WithField(field, msg string) *Error {
	cp := *e
	cp.Fields = make(map[string]string, len(e.Fields)+1)
	maps.Copy(cp.Fields, e.Fields)
	cp.Fields[field] = msg
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(code, msg string) *Error   { return New(KindValidation, code, msg) }
func Unauthorized(code, msg string) *Error { return New(KindUnauthorized, code, msg) }
func Forbidden(code, msg string) *Error    { return New(KindForbidden, code, msg) }
func NotFound(code, msg string) *Error     { return New(KindNotFound, code, msg) }
func Conflict(code, msg string) *Error     { return New(KindConflict, code, msg) }
func Upstream(code, msg string) *Error     { return New(KindUpstream, code, msg) }

// Internal is what callers see for anything that is not an *Error.
var Internal = New(KindInternal, "internal_error", "internal error")

// From extracts the *Error in err's chain, falling back to Internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal
}

// KindOf reports the kind of err, KindInternal when it is not classified.
func KindOf(err error) Kind {
	return From(err).Kind
}
