package types

import "errors"

// Kinded is implemented by errors that carry their own ErrorKind.
type Kinded interface {
	Kind() ErrorKind
}

// KindOf walks the error chain and returns the first ErrorKind found.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ErrorUnknown
}

// KindError is a sentinel error tagged with an ErrorKind.
type KindError struct {
	kind ErrorKind
	msg  string
}

// NewKindError returns a sentinel error of the given kind.
func NewKindError(kind ErrorKind, msg string) *KindError {
	return &KindError{kind: kind, msg: msg}
}

func (e *KindError) Error() string   { return e.msg }
func (e *KindError) Kind() ErrorKind { return e.kind }
