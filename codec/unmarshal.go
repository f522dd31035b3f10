// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/creachadair/refjson"
	"github.com/creachadair/refjson/jpath"
)

// Unmarshal decodes data into the value pointed to by v, which must be a
// non-nil pointer.
//
// When opts carries PreserveReferences, the metadata keys "$id", "$ref", and
// "$values" are interpreted to reconstruct shared and cyclic structure: an
// object carrying "$id" is recorded in a per-operation reference table, a
// {"$ref": id} object is replaced by the recorded composite, and an object of
// the form {"$id": id, "$values": [...]} decodes as the array it wraps. A
// "$ref" naming an identifier the document never defines decodes as null.
// Under any other policy the metadata keys are ordinary member names.
func Unmarshal(data []byte, v any, opts *Options) error {
	if err := opts.check(); err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer, not %T", v)
	}
	d := &decoder{
		meta:     opts.references() == PreserveReferences,
		maxDepth: opts.maxDepth(),
		table:    newRefTable(),
		out:      rv.Elem(),
	}
	st := refjson.NewStream(bytes.NewReader(data))
	if err := st.ParseOne(d); err == io.EOF {
		return errAt(IncompleteInput, nil, "empty input")
	} else if err != nil {
		return d.wrapStreamError(err)
	}
	if err := d.table.applyPatches(); err != nil {
		return err
	}

	// Anything but whitespace after the first value is an error.
	var rest discardHandler
	if err := st.ParseOne(&rest); err == nil {
		return ErrExtraInput
	} else if err != io.EOF {
		return errors.Join(ErrExtraInput, err)
	}
	return nil
}

var (
	anyType      = reflect.TypeOf((*any)(nil)).Elem()
	sliceAnyType = reflect.TypeOf([]any(nil))
)

// A metaKind classifies an object member name at the point it is read.
type metaKind int

const (
	metaNone   metaKind = iota
	metaID              // "$id"
	metaRef             // "$ref"
	metaValues          // "$values"
)

type fkind int

const (
	fPending fkind = iota // object seen, construction deferred
	fStruct               // populating a struct
	fMap                  // populating a map
	fArray                // populating an array or slice
	fWrapper              // preserved-array wrapper object
)

// A slot describes the destination of the value currently being read: its
// static type, its path from the root, and how to deliver a completed value.
// The late hook reserves the slot's position and returns a setter that
// remains valid after the enclosing composite has finished, for references
// whose referent is still under construction.
type slot struct {
	typ  reflect.Type
	path jpath.Path
	set  func(reflect.Value) error
	late func() func(reflect.Value) error
}

// A dframe is the bookkeeping for one composite being read.
type dframe struct {
	kind fkind
	typ  reflect.Type // declared slot type
	path jpath.Path
	sl   slot

	// Metadata state.
	pendingMeta metaKind
	id          string
	refID       string
	hasRef      bool
	seenMember  bool
	entry       *refEntry
	anySlot     bool // slot type is the empty interface
	fixed       bool // slot type is a fixed-capacity array
	wrapperDone bool // wrapper: the $values array has closed

	// Object and dictionary population.
	obj        reflect.Value // struct value (addressable) or map
	ptr        reflect.Value // pointer to obj, for struct frames
	info       *structInfo
	fld        *field
	memberName string
	skipMember bool
	keyType    reflect.Type
	elemType   reflect.Type
	mapKey     reflect.Value

	// Array population.
	inArray bool
	arrTyp  reflect.Type // concrete slice type being accumulated
	slice   reflect.Value
	count   int
}

type decoder struct {
	meta     bool
	maxDepth int
	table    *refTable
	out      reflect.Value

	stk  []*dframe
	skip int // depth of composites being discarded
}

func (d *decoder) top() *dframe { return d.stk[len(d.stk)-1] }

func (d *decoder) pop() { d.stk = d.stk[:len(d.stk)-1] }

// topSkipping reports whether the current member of the top frame is being
// discarded (an object member with no corresponding field).
func (d *decoder) topSkipping() bool {
	n := len(d.stk)
	return n > 0 && d.stk[n-1].skipMember
}

func (d *decoder) curPath() jpath.Path {
	if n := len(d.stk); n > 0 {
		return d.stk[n-1].path
	}
	return nil
}

func (d *decoder) wrapStreamError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errAt(IncompleteInput, d.curPath(), "input ended inside a value")
	}
	return err
}

// slot reports the destination of the next value.
func (d *decoder) slot() (slot, error) {
	if len(d.stk) == 0 {
		out := d.out
		set := func(v reflect.Value) error { return setValue(out, v) }
		return slot{
			typ:  out.Type(),
			set:  set,
			late: func() func(reflect.Value) error { return set },
		}, nil
	}
	fr := d.top()
	switch {
	case fr.inArray:
		et := fr.arrTyp.Elem()
		return slot{
			typ:  et,
			path: fr.path.At(fr.count),
			set:  fr.appendElem,
			late: func() func(reflect.Value) error {
				i := fr.count
				fr.appendElem(reflect.Value{}) // reserve the position
				return func(v reflect.Value) error {
					if !v.IsValid() {
						return nil // the reserved element is already zero
					}
					if !v.Type().AssignableTo(et) {
						return fmt.Errorf("cannot assign %s to %s", v.Type(), et)
					}
					fr.slice.Index(i).Set(v)
					return nil
				}
			},
		}, nil

	case fr.kind == fStruct:
		if fr.fld == nil {
			return slot{}, errAt(unknownKind, fr.path, "no member is pending")
		}
		fv := fr.obj.FieldByIndex(fr.fld.index)
		set := func(v reflect.Value) error { return setValue(fv, v) }
		return slot{
			typ:  fv.Type(),
			path: fr.path.Field(fr.memberName),
			set:  set,
			late: func() func(reflect.Value) error { return set },
		}, nil

	case fr.kind == fMap:
		m, key, et := fr.obj, fr.mapKey, fr.elemType
		set := func(v reflect.Value) error {
			if !v.IsValid() {
				v = reflect.Zero(et)
			} else if !v.Type().AssignableTo(et) {
				return fmt.Errorf("cannot assign %s to %s", v.Type(), et)
			}
			m.SetMapIndex(key, v)
			return nil
		}
		return slot{
			typ:  et,
			path: fr.path.Field(fr.memberName),
			set:  set,
			late: func() func(reflect.Value) error { return set },
		}, nil
	}
	return slot{}, errAt(unknownKind, fr.path, "no slot is available")
}

// appendElem appends v to the array being accumulated. An invalid v appends
// the zero element.
func (fr *dframe) appendElem(v reflect.Value) error {
	et := fr.arrTyp.Elem()
	if !v.IsValid() {
		v = reflect.Zero(et)
	} else if !v.Type().AssignableTo(et) {
		return fmt.Errorf("cannot assign %s to %s", v.Type(), et)
	}
	fr.slice = reflect.Append(fr.slice, v)
	fr.count++
	return nil
}

// materialize allocates the composite for a deferred object frame and, if an
// identifier has been captured, registers it in the reference table. This
// runs at the first event that proves the object is not a reference: a
// regular member name, a "$id" at a concrete slot, or the closing brace.
func (d *decoder) materialize(fr *dframe) error {
	base := derefType(fr.typ)
	switch base.Kind() {
	case reflect.Interface:
		fr.obj = reflect.ValueOf(map[string]any{})
		fr.keyType, fr.elemType = reflect.TypeOf(""), anyType
		fr.kind = fMap
	case reflect.Struct:
		fr.ptr = reflect.New(base)
		fr.obj = fr.ptr.Elem()
		fr.info = infoFor(base)
		fr.kind = fStruct
	case reflect.Map:
		switch base.Key().Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			// usable as member names
		default:
			return errAt(TypeMismatch, fr.path, "unsupported map key type %s", base.Key())
		}
		fr.obj = reflect.MakeMap(base)
		fr.keyType, fr.elemType = base.Key(), base.Elem()
		fr.kind = fMap
	default:
		return errAt(TypeMismatch, fr.path, "cannot unmarshal object into %s", fr.typ)
	}
	if fr.id != "" {
		return d.register(fr)
	}
	return nil
}

// register places the frame's composite in the reference table under its
// captured identifier.
func (d *decoder) register(fr *dframe) error {
	var val reflect.Value
	switch fr.kind {
	case fStruct:
		val = fr.ptr
	case fWrapper:
		val = fr.slice
	default:
		val = fr.obj
	}
	e, err := d.table.register(fr.id, val, fr.path)
	if err != nil {
		return err
	}
	fr.entry = e
	return nil
}

// result produces the completed composite in the shape the slot demands.
func (fr *dframe) result() reflect.Value {
	switch fr.kind {
	case fStruct:
		if fr.typ.Kind() == reflect.Pointer {
			return wrapToType(fr.ptr, fr.typ)
		}
		return fr.obj
	default:
		return wrapToType(fr.obj, fr.typ)
	}
}

// BeginObject defers construction: whether this object is a value, a
// reference placeholder, or a preserved-array wrapper is not known until its
// first member name (or closing brace) has been seen.
func (d *decoder) BeginObject(loc refjson.Anchor) error {
	if d.skip > 0 || d.topSkipping() {
		d.skip++
		return nil
	}
	if err := d.checkMetaValue(refjson.LBrace); err != nil {
		return err
	}
	sl, err := d.slot()
	if err != nil {
		return err
	}
	if len(d.stk)+1 > d.maxDepth {
		return errAt(DepthExceeded, sl.path, "nesting exceeds %d levels", d.maxDepth)
	}
	fr := &dframe{typ: sl.typ, path: sl.path, sl: sl}
	base := derefType(sl.typ)
	switch base.Kind() {
	case reflect.Slice, reflect.Array:
		if !d.meta {
			return errAt(TypeMismatch, sl.path, "cannot unmarshal object into %s", sl.typ)
		}
		fr.kind = fWrapper
		fr.fixed = base.Kind() == reflect.Array
	case reflect.Struct, reflect.Map:
		fr.kind = fPending
		if !d.meta {
			if err := d.materialize(fr); err != nil {
				return err
			}
		}
	case reflect.Interface:
		if base.NumMethod() != 0 {
			return errAt(TypeMismatch, sl.path, "cannot unmarshal into non-empty interface %s", sl.typ)
		}
		fr.kind = fPending
		fr.anySlot = true
		if !d.meta {
			if err := d.materialize(fr); err != nil {
				return err
			}
		}
	default:
		return errAt(TypeMismatch, sl.path, "cannot unmarshal object into %s", sl.typ)
	}
	d.stk = append(d.stk, fr)
	return nil
}

func (d *decoder) EndObject(loc refjson.Anchor) error {
	if d.skip > 0 {
		d.skip--
		return nil
	}
	fr := d.top()
	if fr.kind == fWrapper && fr.wrapperDone {
		// The wrapper object is transparent; its value was delivered when the
		// $values array closed.
		d.pop()
		return nil
	}
	if fr.hasRef {
		return d.graftRef(fr)
	}
	switch fr.kind {
	case fPending:
		if err := d.materialize(fr); err != nil {
			return err
		}
	case fWrapper:
		if fr.id == "" {
			return errAt(PreservedArrayMalformed, fr.path, "preserved array is missing $id and $values")
		}
		return errAt(PreservedArrayMalformed, fr.path, "preserved array is missing $values")
	}
	if fr.entry != nil {
		fr.entry.done = true
	}
	if err := fr.sl.set(fr.result()); err != nil {
		return errAt(TypeMismatch, fr.path, "%v", err)
	}
	d.pop()
	return nil
}

// graftRef replaces a reference object's slot with its referent. An unknown
// identifier yields null; a referent whose array is still under construction
// is patched in after the operation completes.
func (d *decoder) graftRef(fr *dframe) error {
	d.pop()
	e, ok := d.table.lookup(fr.refID)
	if !ok {
		if err := fr.sl.set(reflect.Value{}); err != nil {
			return errAt(IncompatibleReference, fr.path, "%v", err)
		}
		return nil
	}
	if !e.done && e.val.Kind() == reflect.Slice {
		d.table.patchLater(fr.refID, fr.path, fr.sl.late())
		return nil
	}
	if err := fr.sl.set(e.val); err != nil {
		return errAt(IncompatibleReference, fr.path, "%v", err)
	}
	return nil
}

func (d *decoder) BeginMember(loc refjson.Anchor) error {
	if d.skip > 0 {
		return nil
	}
	name, err := refjson.UnquoteText(loc.Text())
	if err != nil {
		return fmt.Errorf("invalid member name: %w", err)
	}
	fr := d.top()
	if fr.hasRef {
		return errAt(ReferenceObjectHasOtherProperties, fr.path,
			"member %q shares an object with $ref", name)
	}
	if d.meta {
		switch name {
		case "$id":
			return d.beginMetaID(fr)
		case "$ref":
			return d.beginMetaRef(fr)
		case "$values":
			return d.beginMetaValues(fr)
		default:
			if fr.kind == fWrapper && strings.HasPrefix(name, "$") {
				return errAt(UnexpectedMetadata, fr.path.Field(name),
					"unknown metadata key %q in preserved array", name)
			}
		}
	}

	// A regular member.
	if fr.kind == fWrapper {
		return errAt(PreservedArrayMalformed, fr.path,
			"unexpected member %q in preserved array", name)
	}
	if fr.kind == fPending {
		if err := d.materialize(fr); err != nil {
			return err
		}
	}
	fr.seenMember = true
	fr.memberName = name
	switch fr.kind {
	case fStruct:
		if i, ok := fr.info.byName[name]; ok {
			fr.fld = &fr.info.fields[i]
		} else {
			fr.skipMember = true
		}
	case fMap:
		key, err := convertKey(name, fr.keyType)
		if err != nil {
			return errAt(TypeMismatch, fr.path.Field(name), "%v", err)
		}
		fr.mapKey = key
	}
	return nil
}

func (d *decoder) beginMetaID(fr *dframe) error {
	if fr.fixed {
		return errAt(UnresolvableTypeForPreservation, fr.path,
			"cannot preserve fixed-capacity %s", fr.typ)
	}
	if fr.id != "" {
		return errAt(DuplicateIdentifier, fr.path.Field("$id"),
			"object carries more than one $id")
	}
	if fr.wrapperDone {
		return errAt(PreservedArrayMalformed, fr.path, "$id follows $values")
	}
	fr.pendingMeta = metaID
	return nil
}

func (d *decoder) beginMetaRef(fr *dframe) error {
	if fr.fixed {
		return errAt(UnresolvableTypeForPreservation, fr.path,
			"cannot preserve fixed-capacity %s", fr.typ)
	}
	if fr.id != "" || fr.seenMember || fr.wrapperDone {
		return errAt(ReferenceObjectHasOtherProperties, fr.path,
			"$ref shares an object with other members")
	}
	if fr.typ.Kind() == reflect.Struct {
		return errAt(UnexpectedMetadata, fr.path.Field("$ref"),
			"$ref cannot graft into a by-value %s slot", fr.typ)
	}
	fr.pendingMeta = metaRef
	return nil
}

func (d *decoder) beginMetaValues(fr *dframe) error {
	switch {
	case fr.kind == fWrapper:
		if fr.fixed {
			return errAt(UnresolvableTypeForPreservation, fr.path,
				"cannot preserve fixed-capacity %s", fr.typ)
		}
		if fr.wrapperDone {
			return errAt(PreservedArrayMalformed, fr.path, "multiple $values members")
		}
		if fr.id == "" {
			return errAt(PreservedArrayMalformed, fr.path, "$values precedes $id")
		}
	case fr.kind == fPending && fr.anySlot:
		if fr.id == "" {
			return errAt(UnexpectedMetadata, fr.path.Field("$values"), "$values without $id")
		}
		fr.kind = fWrapper
	default:
		return errAt(UnexpectedMetadata, fr.path.Field("$values"),
			"$values in a non-array context")
	}
	fr.pendingMeta = metaValues
	return nil
}

func (d *decoder) EndMember(loc refjson.Anchor) error {
	if d.skip > 0 {
		return nil
	}
	fr := d.top()
	fr.fld = nil
	fr.mapKey = reflect.Value{}
	fr.memberName = ""
	fr.skipMember = false
	return nil
}

// checkMetaValue rejects a composite where a metadata member requires a
// string value.
func (d *decoder) checkMetaValue(tok refjson.Token) error {
	n := len(d.stk)
	if n == 0 {
		return nil
	}
	fr := d.stk[n-1]
	switch fr.pendingMeta {
	case metaID:
		return errAt(UnexpectedMetadata, fr.path.Field("$id"), "$id value must be a string, not %v", tok)
	case metaRef:
		return errAt(UnexpectedMetadata, fr.path.Field("$ref"), "$ref value must be a string, not %v", tok)
	case metaValues:
		if tok == refjson.LBrace {
			return errAt(PreservedArrayMalformed, fr.path.Field("$values"), "$values must be an array, not an object")
		}
	}
	return nil
}

func (d *decoder) BeginArray(loc refjson.Anchor) error {
	if d.skip > 0 || d.topSkipping() {
		d.skip++
		return nil
	}
	if n := len(d.stk); n > 0 && d.stk[n-1].pendingMeta == metaValues {
		// The payload of a preserved-array wrapper. The identifier becomes
		// resolvable here, before any element is read, so the array can
		// contain references to itself.
		fr := d.stk[n-1]
		fr.pendingMeta = metaNone
		if fr.anySlot {
			fr.arrTyp = sliceAnyType
		} else {
			fr.arrTyp = derefType(fr.typ)
		}
		fr.slice = reflect.MakeSlice(fr.arrTyp, 0, 0)
		fr.inArray = true
		return d.register(fr)
	}
	if err := d.checkMetaValue(refjson.LSquare); err != nil {
		return err
	}
	sl, err := d.slot()
	if err != nil {
		return err
	}
	if len(d.stk)+1 > d.maxDepth {
		return errAt(DepthExceeded, sl.path, "nesting exceeds %d levels", d.maxDepth)
	}
	fr := &dframe{kind: fArray, typ: sl.typ, path: sl.path, sl: sl}
	base := derefType(sl.typ)
	switch base.Kind() {
	case reflect.Slice:
		fr.arrTyp = base
	case reflect.Array:
		fr.arrTyp = reflect.SliceOf(base.Elem())
	case reflect.Interface:
		if base.NumMethod() != 0 {
			return errAt(TypeMismatch, sl.path, "cannot unmarshal into non-empty interface %s", sl.typ)
		}
		fr.arrTyp = sliceAnyType
	default:
		return errAt(TypeMismatch, sl.path, "cannot unmarshal array into %s", sl.typ)
	}
	fr.slice = reflect.MakeSlice(fr.arrTyp, 0, 0)
	fr.inArray = true
	d.stk = append(d.stk, fr)
	return nil
}

func (d *decoder) EndArray(loc refjson.Anchor) error {
	if d.skip > 0 {
		d.skip--
		return nil
	}
	fr := d.top()
	if fr.kind == fWrapper {
		// Finalize the wrapped array. The wrapper frame stays on the stack to
		// absorb its own closing brace.
		fr.inArray = false
		fr.wrapperDone = true
		val := fr.slice
		fr.entry.val = val
		fr.entry.done = true
		if err := fr.sl.set(wrapToType(val, fr.typ)); err != nil {
			return errAt(TypeMismatch, fr.path, "%v", err)
		}
		return nil
	}

	var res reflect.Value
	base := derefType(fr.typ)
	if base.Kind() == reflect.Array {
		av := reflect.New(base).Elem()
		reflect.Copy(av, fr.slice)
		res = wrapToType(av, fr.typ)
	} else {
		res = wrapToType(fr.slice, fr.typ)
	}
	if err := fr.sl.set(res); err != nil {
		return errAt(TypeMismatch, fr.path, "%v", err)
	}
	d.pop()
	return nil
}

func (d *decoder) Value(loc refjson.Anchor) error {
	if d.skip > 0 || d.topSkipping() {
		return nil
	}
	tok := loc.Token()
	if n := len(d.stk); n > 0 && d.stk[n-1].pendingMeta != metaNone {
		fr := d.stk[n-1]
		meta := fr.pendingMeta
		fr.pendingMeta = metaNone
		switch meta {
		case metaID:
			if tok != refjson.String {
				return errAt(UnexpectedMetadata, fr.path.Field("$id"),
					"$id value must be a string, not %v", tok)
			}
			id, err := refjson.UnquoteText(loc.Text())
			if err != nil {
				return fmt.Errorf("invalid $id: %w", err)
			}
			fr.id = id
			switch fr.kind {
			case fStruct, fMap:
				return d.register(fr)
			case fPending:
				if !fr.anySlot {
					// A concrete object slot can be allocated now, making the
					// identifier resolvable before any member is populated.
					return d.materialize(fr)
				}
			}
			// Wrappers and deferred any-slots register later, once the shape
			// of the composite is settled.
			return nil

		case metaRef:
			if tok != refjson.String {
				return errAt(UnexpectedMetadata, fr.path.Field("$ref"),
					"$ref value must be a string, not %v", tok)
			}
			id, err := refjson.UnquoteText(loc.Text())
			if err != nil {
				return fmt.Errorf("invalid $ref: %w", err)
			}
			fr.refID = id
			fr.hasRef = true
			return nil

		default: // metaValues
			return errAt(PreservedArrayMalformed, fr.path.Field("$values"),
				"$values must be an array, not %v", tok)
		}
	}

	sl, err := d.slot()
	if err != nil {
		return err
	}
	if tok == refjson.Null {
		if err := sl.set(reflect.Value{}); err != nil {
			return errAt(TypeMismatch, sl.path, "%v", err)
		}
		return nil
	}
	v, err := convertLeaf(tok, loc.Text(), sl)
	if err != nil {
		return err
	}
	if err := sl.set(v); err != nil {
		return errAt(TypeMismatch, sl.path, "%v", err)
	}
	return nil
}

func (d *decoder) EndOfInput(loc refjson.Anchor) {}

// convertLeaf builds a value of the slot's type from a leaf token.
func convertLeaf(tok refjson.Token, text []byte, sl slot) (reflect.Value, error) {
	base := derefType(sl.typ)
	var out reflect.Value
	switch base.Kind() {
	case reflect.Interface:
		if base.NumMethod() != 0 {
			return reflect.Value{}, errAt(TypeMismatch, sl.path,
				"cannot unmarshal into non-empty interface %s", sl.typ)
		}
		switch tok {
		case refjson.String:
			s, err := refjson.UnquoteText(text)
			if err != nil {
				return reflect.Value{}, errAt(TypeMismatch, sl.path, "invalid string: %v", err)
			}
			out = reflect.ValueOf(s)
		case refjson.Integer:
			z, err := strconv.ParseInt(string(text), 10, 64)
			if err != nil {
				// Out of int64 range; fall back to floating-point.
				f, ferr := strconv.ParseFloat(string(text), 64)
				if ferr != nil {
					return reflect.Value{}, errAt(TypeMismatch, sl.path, "invalid number: %v", err)
				}
				out = reflect.ValueOf(f)
			} else {
				out = reflect.ValueOf(z)
			}
		case refjson.Number:
			f, err := strconv.ParseFloat(string(text), 64)
			if err != nil {
				return reflect.Value{}, errAt(TypeMismatch, sl.path, "invalid number: %v", err)
			}
			out = reflect.ValueOf(f)
		case refjson.True, refjson.False:
			out = reflect.ValueOf(tok == refjson.True)
		default:
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "unexpected %v", tok)
		}
		return wrapToType(out, sl.typ), nil

	case reflect.String:
		if tok != refjson.String {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "cannot unmarshal %v into %s", tok, sl.typ)
		}
		s, err := refjson.UnquoteText(text)
		if err != nil {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "invalid string: %v", err)
		}
		out = reflect.New(base).Elem()
		out.SetString(s)

	case reflect.Bool:
		if tok != refjson.True && tok != refjson.False {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "cannot unmarshal %v into %s", tok, sl.typ)
		}
		out = reflect.New(base).Elem()
		out.SetBool(tok == refjson.True)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if tok != refjson.Integer {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "cannot unmarshal %v into %s", tok, sl.typ)
		}
		z, err := strconv.ParseInt(string(text), 10, 64)
		if err != nil {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "invalid integer: %v", err)
		}
		out = reflect.New(base).Elem()
		if out.OverflowInt(z) {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "value %d overflows %s", z, sl.typ)
		}
		out.SetInt(z)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if tok != refjson.Integer {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "cannot unmarshal %v into %s", tok, sl.typ)
		}
		z, err := strconv.ParseUint(string(text), 10, 64)
		if err != nil {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "invalid integer: %v", err)
		}
		out = reflect.New(base).Elem()
		if out.OverflowUint(z) {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "value %d overflows %s", z, sl.typ)
		}
		out.SetUint(z)

	case reflect.Float32, reflect.Float64:
		if tok != refjson.Integer && tok != refjson.Number {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "cannot unmarshal %v into %s", tok, sl.typ)
		}
		f, err := strconv.ParseFloat(string(text), 64)
		if err != nil {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "invalid number: %v", err)
		}
		out = reflect.New(base).Elem()
		if out.OverflowFloat(f) {
			return reflect.Value{}, errAt(TypeMismatch, sl.path, "value %v overflows %s", f, sl.typ)
		}
		out.SetFloat(f)

	default:
		return reflect.Value{}, errAt(TypeMismatch, sl.path, "cannot unmarshal %v into %s", tok, sl.typ)
	}
	return wrapToType(out, sl.typ), nil
}

// convertKey builds a map key of type typ from a member name.
func convertKey(name string, typ reflect.Type) (reflect.Value, error) {
	switch typ.Kind() {
	case reflect.String:
		return reflect.ValueOf(name).Convert(typ), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		z, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid integer key %q", name)
		}
		k := reflect.New(typ).Elem()
		if k.OverflowInt(z) {
			return reflect.Value{}, fmt.Errorf("key %q overflows %s", name, typ)
		}
		k.SetInt(z)
		return k, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		z, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid integer key %q", name)
		}
		k := reflect.New(typ).Elem()
		if k.OverflowUint(z) {
			return reflect.Value{}, fmt.Errorf("key %q overflows %s", name, typ)
		}
		k.SetUint(z)
		return k, nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported map key type %s", typ)
}

// setValue stores v into dst, which must be settable. An invalid v stores
// the zero value.
func setValue(dst, v reflect.Value) error {
	if !v.IsValid() {
		dst.SetZero()
		return nil
	}
	if !v.Type().AssignableTo(dst.Type()) {
		return fmt.Errorf("cannot assign %s to %s", v.Type(), dst.Type())
	}
	dst.Set(v)
	return nil
}

// derefType strips pointer layers from t.
func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// wrapToType rebuilds pointer layers around v to produce a value assignable
// to typ. Interface types and exact matches pass v through unchanged.
func wrapToType(v reflect.Value, typ reflect.Type) reflect.Value {
	if typ.Kind() != reflect.Pointer || v.Type() == typ {
		return v
	}
	inner := wrapToType(v, typ.Elem())
	p := reflect.New(typ.Elem())
	p.Elem().Set(inner)
	return p
}

// A discardHandler ignores all events. It is used to probe for input after
// the first value.
type discardHandler struct{}

func (discardHandler) BeginObject(refjson.Anchor) error { return nil }
func (discardHandler) EndObject(refjson.Anchor) error   { return nil }
func (discardHandler) BeginArray(refjson.Anchor) error  { return nil }
func (discardHandler) EndArray(refjson.Anchor) error    { return nil }
func (discardHandler) BeginMember(refjson.Anchor) error { return nil }
func (discardHandler) EndMember(refjson.Anchor) error   { return nil }
func (discardHandler) Value(refjson.Anchor) error       { return nil }
func (discardHandler) EndOfInput(refjson.Anchor)        {}
