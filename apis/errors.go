package apis

import (
	"errors"
	"fmt"
)

// Kind tags an engine error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindMalformedDescriptor
	KindRewriteFailure
	KindPatternError
)

var (
	ErrNotFound            = errors.New("not found")
	ErrMalformedDescriptor = errors.New("malformed descriptor")
	ErrRewriteFailure      = errors.New("rewrite failure")
	ErrPatternError        = errors.New("pattern error")
)

var kindSentinels = map[Kind]error{
	KindNotFound:            ErrNotFound,
	KindMalformedDescriptor: ErrMalformedDescriptor,
	KindRewriteFailure:      ErrRewriteFailure,
	KindPatternError:        ErrPatternError,
}

func (k Kind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return "unknown"
}

// Error is an engine error tagged with its Kind. Subject names what failed
// (a unit id, a type name, a file path).
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

// NewError builds an *Error. err may be nil.
func NewError(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Subject, e.Kind)
	case e.Subject == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Subject, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return KindUnknown
}
