// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"errors"
	"fmt"

	"github.com/creachadair/refjson/jpath"
)

// An ErrorKind classifies the failures reported by Marshal and Unmarshal.
type ErrorKind int

const (
	unknownKind ErrorKind = iota

	// CycleDetected: marshaling under DefaultReferences exceeded the depth
	// ceiling, which is how an unbroken reference loop surfaces.
	CycleDetected

	// DepthExceeded: the depth ceiling was exceeded while identity tracking
	// was active, or while reading.
	DepthExceeded

	// DuplicateIdentifier: two "$id" members in the same document carry the
	// same identifier.
	DuplicateIdentifier

	// ReferenceObjectHasOtherProperties: a "$ref" member shares its object
	// with any other member, metadata or regular, before or after.
	ReferenceObjectHasOtherProperties

	// UnexpectedMetadata: a metadata key occurred where it is not permitted,
	// such as "$values" without a sibling "$id", "$values" at a slot that is
	// not array-shaped, an unknown "$"-prefixed key inside a preserved-array
	// wrapper, or "$ref" at a slot that holds its value inline.
	UnexpectedMetadata

	// UnresolvableTypeForPreservation: the payload attempts to preserve a
	// fixed-capacity collection, which cannot be registered for reference
	// resolution.
	UnresolvableTypeForPreservation

	// PreservedArrayMalformed: a preserved-array wrapper is missing "$id" or
	// "$values", or its "$values" member is not an array.
	PreservedArrayMalformed

	// IncompatibleReference: a "$ref" resolved to a value whose type cannot
	// be assigned to the slot holding the reference.
	IncompatibleReference

	// TypeMismatch: the shape of an input value does not match the type of
	// the slot it populates.
	TypeMismatch

	// IncompleteInput: the input ended in the middle of a value.
	IncompleteInput
)

var kindStr = map[ErrorKind]string{
	unknownKind:                       "unknown error",
	CycleDetected:                     "cycle detected",
	DepthExceeded:                     "depth exceeded",
	DuplicateIdentifier:               "duplicate identifier",
	ReferenceObjectHasOtherProperties: "reference object has other members",
	UnexpectedMetadata:                "unexpected metadata",
	UnresolvableTypeForPreservation:   "unresolvable type for preservation",
	PreservedArrayMalformed:           "preserved array malformed",
	IncompatibleReference:             "incompatible reference",
	TypeMismatch:                      "type mismatch",
	IncompleteInput:                   "incomplete input",
}

func (k ErrorKind) String() string {
	if s, ok := kindStr[k]; ok {
		return s
	}
	return kindStr[unknownKind]
}

// Error is the concrete type of structural errors reported by Marshal and
// Unmarshal. Path addresses the value at which the failure was detected.
type Error struct {
	Kind    ErrorKind
	Path    jpath.Path
	Message string
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
}

// Is reports whether e matches target. Two errors match if their kinds are
// equal, so that callers can probe with errors.Is(err, &Error{Kind: k}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ErrExtraInput is reported by Unmarshal when well-formed input continues
// past the end of the first value.
var ErrExtraInput = errors.New("extra input after value")

func errAt(kind ErrorKind, path jpath.Path, msg string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(msg, args...)}
}
