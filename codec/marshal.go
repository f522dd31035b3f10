// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/refjson"
	"github.com/creachadair/refjson/jpath"
)

// Marshal encodes v as JSON under the policy carried by opts. A nil *Options
// provides default settings.
//
// Under DefaultReferences, values are written wherever they occur; a cycle in
// the input surfaces as a CycleDetected error when nesting exceeds the depth
// ceiling. Under IgnoreCycles, a member or element whose value is already on
// the path from the root is omitted. Under PreserveReferences, each struct
// pointer, map, or slice written carries a "$id" member and later occurrences are
// written as {"$ref": id}; slices are wrapped as {"$id": id, "$values":
// [...]} so that the identifier has a place to live.
//
// Structs addressed by value, Go arrays, and the targets of pointers to
// non-struct values are written inline in every mode: they have no stable
// identity to preserve.
func Marshal(v any, opts *Options) ([]byte, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	e := &encoder{
		w:        refjson.NewWriter(&buf),
		mode:     opts.references(),
		maxDepth: opts.maxDepth(),
		omitNull: opts.ignoreNulls(),
	}
	switch e.mode {
	case IgnoreCycles:
		e.onPath = mapset.New[refKey]()
	case PreserveReferences:
		e.preserved = make(map[refKey]string)
	}

	p := e.analyze(reflect.ValueOf(v))
	if err := e.emit(p, nil); err != nil {
		return nil, err
	}
	if err := e.w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// A refKey distinguishes a composite value by identity. Pointers and maps
// are keyed by address; a slice is keyed by the address of its backing array
// together with its length, since two distinct slices may share a prefix.
type refKey struct {
	ptr uintptr
	len int // -1 for non-slices
}

type emitAction int

const (
	emitFull emitAction = iota // write the value in full
	emitRef                    // write a {"$ref": id} object
	emitSkip                   // write nothing for this slot
)

// A plan is the write-side reference resolver's decision for one value.
type plan struct {
	v      reflect.Value // the resolved value; invalid when isNull
	act    emitAction
	id     string // identifier under PreserveReferences
	key    refKey
	track  bool // value participates in identity tracking
	isNull bool
}

type encoder struct {
	w        *refjson.Writer
	mode     ReferenceHandling
	maxDepth int
	omitNull bool

	depth     int
	onPath    mapset.Set[refKey] // IgnoreCycles: identities on the current path
	preserved map[refKey]string  // PreserveReferences: identity -> identifier
	nextID    int
}

// analyze resolves v through interfaces and pointers and decides how the slot
// holding it is to be written.
func (e *encoder) analyze(v reflect.Value) plan {
	var p plan
	for {
		if !v.IsValid() {
			return plan{isNull: true}
		}
		switch v.Kind() {
		case reflect.Interface:
			if v.IsNil() {
				return plan{isNull: true}
			}
			v = v.Elem()
			continue

		case reflect.Pointer:
			if v.IsNil() {
				return plan{isNull: true}
			}
			if k := v.Elem().Kind(); k != reflect.Struct {
				// Only a pointer directly at a struct confers identity; for
				// anything else the pointee stands on its own.
				v = v.Elem()
				continue
			}
			p = plan{v: v.Elem(), key: refKey{ptr: v.Pointer(), len: -1}, track: true}

		case reflect.Map:
			if v.IsNil() {
				return plan{isNull: true}
			}
			p = plan{v: v, key: refKey{ptr: v.Pointer(), len: -1}, track: true}

		case reflect.Slice:
			if v.IsNil() {
				return plan{isNull: true}
			}
			p = plan{v: v, key: refKey{ptr: v.Pointer(), len: v.Len()}, track: true}

		default:
			p = plan{v: v}
		}
		break
	}

	if p.track {
		switch e.mode {
		case IgnoreCycles:
			if e.onPath.Has(p.key) {
				p.act = emitSkip
			}
		case PreserveReferences:
			if id, ok := e.preserved[p.key]; ok {
				p.act = emitRef
				p.id = id
			} else {
				e.nextID++
				p.id = strconv.Itoa(e.nextID)
				e.preserved[p.key] = p.id
			}
		}
	}
	return p
}

// emit writes the value decided by p at path.
// Precondition: p.act == emitFull.
func (e *encoder) emit(p plan, path jpath.Path) error {
	if p.isNull {
		return e.w.Null()
	}
	v := p.v
	switch v.Kind() {
	case reflect.Bool:
		return e.w.Bool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.w.Int(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.w.Uint(v.Uint())
	case reflect.Float32, reflect.Float64:
		return e.writeFloat(v.Float(), path)
	case reflect.String:
		return e.w.String(v.String())
	case reflect.Struct:
		return e.object(p, path)
	case reflect.Map:
		return e.dict(p, path)
	case reflect.Slice, reflect.Array:
		return e.array(p, path)
	default:
		return errAt(TypeMismatch, path, "cannot marshal %s value", v.Type())
	}
}

func (e *encoder) writeFloat(f float64, path jpath.Path) error {
	if err := e.w.Float(f); err != nil {
		return errAt(TypeMismatch, path, "%v", err)
	}
	return nil
}

// refObject writes a {"$ref": id} reference object.
func (e *encoder) refObject(id string) error {
	e.w.BeginObject()
	e.w.Name("$ref")
	e.w.String(id)
	return e.w.EndObject()
}

// push records entry into the composite planned by p, enforcing the depth
// ceiling and placing identity-tracked values on the path set.
func (e *encoder) push(p plan, path jpath.Path) error {
	e.depth++
	if e.depth > e.maxDepth {
		if e.mode == DefaultReferences {
			return errAt(CycleDetected, path, "nesting exceeds %d levels; the graph may contain a cycle", e.maxDepth)
		}
		return errAt(DepthExceeded, path, "nesting exceeds %d levels", e.maxDepth)
	}
	if e.mode == IgnoreCycles && p.track {
		e.onPath.Add(p.key)
	}
	return nil
}

// pop undoes the matching push. Only the frame that placed an identity on the
// path set removes it, so a suppressed duplicate leaves the original entry in
// place.
func (e *encoder) pop(p plan) {
	e.depth--
	if e.mode == IgnoreCycles && p.track {
		e.onPath.Remove(p.key)
	}
}

func (e *encoder) object(p plan, path jpath.Path) error {
	if err := e.push(p, path); err != nil {
		return err
	}
	defer e.pop(p)

	e.w.BeginObject()
	if p.id != "" {
		e.w.Name("$id")
		e.w.String(p.id)
	}
	info := infoFor(p.v.Type())
	for _, f := range info.fields {
		fv := p.v.FieldByIndex(f.index)
		if f.omitEmpty && isEmptyValue(fv) {
			continue
		}
		if err := e.member(f.name, fv, path); err != nil {
			return err
		}
	}
	return e.w.EndObject()
}

func (e *encoder) dict(p plan, path jpath.Path) error {
	if err := e.push(p, path); err != nil {
		return err
	}
	defer e.pop(p)

	e.w.BeginObject()
	if p.id != "" {
		e.w.Name("$id")
		e.w.String(p.id)
	}

	// Sort the keys so that output is deterministic for a given input.
	type entry struct {
		name string
		val  reflect.Value
	}
	entries := make([]entry, 0, p.v.Len())
	it := p.v.MapRange()
	for it.Next() {
		name, err := mapKeyString(it.Key())
		if err != nil {
			return errAt(TypeMismatch, path, "%v", err)
		}
		entries = append(entries, entry{name: name, val: it.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return bytes.Compare([]byte(a.name), []byte(b.name))
	})

	for _, kv := range entries {
		if err := e.member(kv.name, kv.val, path); err != nil {
			return err
		}
	}
	return e.w.EndObject()
}

func (e *encoder) array(p plan, path jpath.Path) error {
	if err := e.push(p, path); err != nil {
		return err
	}
	defer e.pop(p)

	// A preserved array is wrapped in an object so the identifier has a
	// member to live in: {"$id": id, "$values": [...]}.
	if p.id != "" {
		e.w.BeginObject()
		e.w.Name("$id")
		e.w.String(p.id)
		e.w.Name("$values")
	}
	e.w.BeginArray()
	for i := 0; i < p.v.Len(); i++ {
		if err := e.element(i, p.v.Index(i), path); err != nil {
			return err
		}
	}
	if err := e.w.EndArray(); err != nil {
		return err
	}
	if p.id != "" {
		return e.w.EndObject()
	}
	return nil
}

// member writes one object member. A member whose value closes a cycle under
// IgnoreCycles is omitted entirely, key included.
func (e *encoder) member(name string, v reflect.Value, path jpath.Path) error {
	p := e.analyze(v)
	if p.isNull {
		if e.omitNull {
			return nil
		}
		e.w.Name(name)
		return e.w.Null()
	}
	switch p.act {
	case emitSkip:
		return nil
	case emitRef:
		e.w.Name(name)
		return e.refObject(p.id)
	}
	e.w.Name(name)
	return e.emit(p, path.Field(name))
}

// element writes one array element. A skipped element is omitted, shortening
// the output array.
func (e *encoder) element(i int, v reflect.Value, path jpath.Path) error {
	p := e.analyze(v)
	switch p.act {
	case emitSkip:
		return nil
	case emitRef:
		return e.refObject(p.id)
	}
	return e.emit(p, path.At(i))
}

// mapKeyString renders a map key as a JSON member name. String keys are used
// as-is; integer keys are rendered in decimal.
func mapKeyString(k reflect.Value) (string, error) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	default:
		return "", fmt.Errorf("unsupported map key type %s", k.Type())
	}
}
