// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package codec

import "fmt"

// ReferenceHandling selects how Marshal treats object graphs whose composite
// values are reachable through more than one path, and whether Unmarshal
// interprets reference metadata keys.
type ReferenceHandling int

const (
	// DefaultReferences does no identity tracking. Marshaling a cyclic graph
	// fails with CycleDetected once nesting exceeds the depth ceiling, and
	// Unmarshal treats "$"-prefixed member names as ordinary members.
	DefaultReferences ReferenceHandling = iota

	// IgnoreCycles tracks the identities of composites on the path from the
	// root to the value being written. A member or element whose value is
	// already on that path is omitted from the output entirely. Duplicates
	// that do not close a cycle are written in full each time.
	IgnoreCycles

	// PreserveReferences assigns each struct pointer, map, or slice written an
	// identifier carried in a "$id" member, and writes every later occurrence
	// of the same composite as a {"$ref": id} object. Structs addressed by
	// value and Go arrays carry no identifier. On read, the same metadata keys are
	// interpreted to reconstruct shared and cyclic structure.
	PreserveReferences
)

var handlingStr = map[ReferenceHandling]string{
	DefaultReferences:  "default",
	IgnoreCycles:       "ignore-cycles",
	PreserveReferences: "preserve",
}

func (r ReferenceHandling) String() string {
	if s, ok := handlingStr[r]; ok {
		return s
	}
	return fmt.Sprintf("ReferenceHandling(%d)", int(r))
}

// DefaultMaxDepth is the nesting depth ceiling used when Options.MaxDepth is
// zero.
const DefaultMaxDepth = 64

// Options carry the configuration for Marshal and Unmarshal. A nil *Options
// is ready for use and provides default values. An Options value must not be
// modified while any operation using it is in flight.
type Options struct {
	// References selects the reference-handling policy. On read, metadata
	// keys are interpreted only when this is PreserveReferences.
	References ReferenceHandling

	// MaxDepth is the maximum permitted nesting depth of composite values,
	// applied uniformly on both read and write. If zero, DefaultMaxDepth is
	// used.
	MaxDepth int

	// IgnoreNulls, if true, omits object members whose value is null from
	// marshaled output.
	IgnoreNulls bool
}

func (o *Options) references() ReferenceHandling {
	if o == nil {
		return DefaultReferences
	}
	return o.References
}

func (o *Options) maxDepth() int {
	if o == nil || o.MaxDepth == 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

func (o *Options) ignoreNulls() bool { return o != nil && o.IgnoreNulls }

// check validates o before an operation begins.
func (o *Options) check() error {
	if o == nil {
		return nil
	}
	if o.References < DefaultReferences || o.References > PreserveReferences {
		return fmt.Errorf("reference handling out of range: %d", int(o.References))
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("max depth out of range: %d", o.MaxDepth)
	}
	return nil
}
