// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package codec implements JSON marshaling and unmarshaling with reference
// handling for object graphs containing cycles, shared sub-objects, and
// self-references, which plain JSON cannot represent.
//
// # Writing
//
// Marshal traverses a value reflectively and encodes it with the policy
// selected by [Options.References]:
//
//   - [DefaultReferences] writes every value where it occurs; a cycle fails
//     with a [CycleDetected] error when the depth ceiling is exceeded.
//   - [IgnoreCycles] omits any member or element whose value is already on
//     the path from the root to the current position.
//   - [PreserveReferences] writes each struct pointer, map, or slice once in
//     full with a "$id" member, and every later occurrence as {"$ref": id}.
//
// Identity is the runtime identity of the value: two structurally equal but
// distinct composites are encoded independently. Structs addressed by value
// and fixed-size arrays carry no identity and are always written inline.
//
// # Reading
//
// Unmarshal decodes into a pointer target. With PreserveReferences the
// metadata keys are interpreted: an object carrying "$id" becomes resolvable
// the moment it is allocated, before its members are populated, so a
// descendant may refer back to it. Construction of each object is deferred
// until its "$id" or first regular member so that a {"$ref": id} placeholder never
// allocates a throwaway value. A preserved array is written and read in the
// wrapped form {"$id": id, "$values": [...]}.
//
// # Failures
//
// Structural failures are reported as [*Error] values carrying an
// [ErrorKind] and a JSONPath locating the offending value, for example:
//
//	reference object has other members at $.Manager: member "Name" shares an object with $ref
package codec
