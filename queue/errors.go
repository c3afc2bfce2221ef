package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks an item that can never be played.
	ErrUnavailable = errors.New("item unavailable")
	// ErrTransient marks a fetch failure that may succeed on a later attempt.
	ErrTransient = errors.New("transient fetch error")

	ErrIndexOutOfRange = errors.New("queue index out of range")

	errNoStream = errors.New("resolver returned no stream")
	errNoTitle  = errors.New("resolver returned no title")
)

type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindUnavailable
)

func (k ErrorKind) String() string {
	if k == KindUnavailable {
		return "unavailable"
	}
	return "transient"
}

// ResolveError is returned by resolvers and by Item.Resolve.
type ResolveError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s (%s): %v", e.Source, e.Kind, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

func (e *ResolveError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

// Unavailable wraps err as a permanent resolution failure for source.
func Unavailable(source string, err error) error {
	return &ResolveError{Source: source, Kind: KindUnavailable, Err: err}
}

// Transient wraps err as a retryable resolution failure for source.
func Transient(source string, err error) error {
	return &ResolveError{Source: source, Kind: KindTransient, Err: err}
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
