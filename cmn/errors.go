// Package cmn holds the domain types and error taxonomy shared by every
// component of the slide agent.
/*
 * Copyright (c) 2024, Pathlake. All rights reserved.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the closed set of error kinds from the error-handling
// design: io, sizeMismatch, timeout, toolchain, bounds, transient,
// permanent, configMissing, dbInvariant.
type Kind string

const (
	KindIO           Kind = "io"
	KindSizeMismatch Kind = "sizeMismatch"
	KindTimeout      Kind = "timeout"
	KindToolchain    Kind = "toolchain"
	KindBounds       Kind = "bounds"
	KindTransient    Kind = "transient"
	KindPermanent    Kind = "permanent"
	KindConfigMiss   Kind = "configMissing"
	KindDBInvariant  Kind = "dbInvariant"
)

// Error is a sentinel-wrapped error carrying one of the closed Kinds plus
// the operation that failed and a message. errors.Is
// matches on Kind; errors.As recovers the full struct for the message and
// Wrapped cause. pkg/errors.WithStack is used at construction so job
// failures keep a trace without each call site needing to add one.
type Error struct {
	Kind    Kind
	Op      string // component/operation, e.g. "ingest.commit", "tiles.generate"
	Msg     string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is lets errors.Is(err, cmn.KindErr(cmn.KindIO)) work by comparing Kind
// against a sentinel *Error; see KindErr below for the comparison values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// KindErr returns a zero-message sentinel of the given kind, suitable for
// errors.Is(err, cmn.KindErr(cmn.KindTimeout)).
func KindErr(k Kind) error { return &Error{Kind: k} }

// NewError builds a stack-annotated *Error.
func NewError(op string, kind Kind, msg string, cause error) error {
	return errors.WithStack(&Error{Op: op, Kind: kind, Msg: msg, Wrapped: cause})
}

// Errorf is a convenience wrapper that formats the message with
// fmt.Sprintf for a fixed Kind. It records no cause: %w does not wrap.
func Errorf(op string, kind Kind, format string, args ...interface{}) error {
	return NewError(op, kind, fmt.Sprintf(format, args...), nil)
}

// KindOf unwraps err looking for the first *Error in its chain and returns
// its Kind, or "" if none is found.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}
