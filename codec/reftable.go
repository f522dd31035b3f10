// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"reflect"

	"github.com/creachadair/refjson/jpath"
)

// A refEntry is one identified composite in a refTable. The value of an
// entry for an object or dictionary is stable from registration; the value
// of an entry for an array is provisional until done is set, since the array
// may be reallocated as it grows.
type refEntry struct {
	val  reflect.Value
	done bool
}

// A refTable records the identified composites of one unmarshal operation,
// together with the reference patches that could not be applied while their
// referents were still under construction.
type refTable struct {
	entries map[string]*refEntry
	patches []refPatch
}

type refPatch struct {
	id   string
	path jpath.Path
	set  func(reflect.Value) error
}

func newRefTable() *refTable {
	return &refTable{entries: make(map[string]*refEntry)}
}

// register records val as the composite identified by id. Registering an
// identifier a second time is fatal.
func (t *refTable) register(id string, val reflect.Value, path jpath.Path) (*refEntry, error) {
	if _, ok := t.entries[id]; ok {
		return nil, errAt(DuplicateIdentifier, path.Field("$id"), "identifier %q is already defined", id)
	}
	e := &refEntry{val: val}
	t.entries[id] = e
	return e, nil
}

// lookup reports the entry for id, if one is defined.
func (t *refTable) lookup(id string) (*refEntry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// patchLater defers the assignment of the composite identified by id until
// the end of the operation, when its construction has finished.
func (t *refTable) patchLater(id string, path jpath.Path, set func(reflect.Value) error) {
	t.patches = append(t.patches, refPatch{id: id, path: path, set: set})
}

// applyPatches resolves all deferred reference patches. A patch whose
// identifier is not in the table resolves to null.
func (t *refTable) applyPatches() error {
	for _, p := range t.patches {
		e, ok := t.entries[p.id]
		if !ok {
			if err := p.set(reflect.Value{}); err != nil {
				return errAt(IncompatibleReference, p.path, "%v", err)
			}
			continue
		}
		if err := p.set(e.val); err != nil {
			return errAt(IncompatibleReference, p.path, "%v", err)
		}
	}
	return nil
}
