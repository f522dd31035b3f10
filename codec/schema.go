// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"reflect"
	"strings"
	"sync"
)

// A field describes one marshalable member of a struct type.
type field struct {
	name      string // member name after tag resolution
	index     []int  // field index chain for reflect
	omitEmpty bool
}

// A structInfo records the ordered marshalable fields of a struct type.
// Fields are kept in declaration order, which fixes the member order of
// marshaled output.
type structInfo struct {
	fields []field
	byName map[string]int // member name -> offset in fields
}

var structCache sync.Map // reflect.Type -> *structInfo

// infoFor returns the member schema for struct type t, deriving and caching
// it on first use. Member names honor the `json` struct tag: a leading name
// replaces the field name, "-" excludes the field, and the "omitempty"
// option suppresses empty values.
func infoFor(t reflect.Type) *structInfo {
	if info, ok := structCache.Load(t); ok {
		return info.(*structInfo)
	}
	info := &structInfo{byName: make(map[string]int)}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		var omitEmpty bool
		if tag, ok := sf.Tag.Lookup("json"); ok {
			base, opts, _ := strings.Cut(tag, ",")
			if base == "-" && opts == "" {
				continue
			}
			if base != "" {
				name = base
			}
			for opts != "" {
				var opt string
				opt, opts, _ = strings.Cut(opts, ",")
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		if _, ok := info.byName[name]; ok {
			continue // an earlier field claimed this name
		}
		info.byName[name] = len(info.fields)
		info.fields = append(info.fields, field{
			name:      name,
			index:     sf.Index,
			omitEmpty: omitEmpty,
		})
	}
	got, _ := structCache.LoadOrStore(t, info)
	return got.(*structInfo)
}

// isEmptyValue reports whether v is the empty value for its type, in the
// sense used by the omitempty tag option.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}
