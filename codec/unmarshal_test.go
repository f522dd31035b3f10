// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package codec_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/creachadair/refjson/codec"
	"github.com/google/go-cmp/cmp"
)

var popts = &codec.Options{References: codec.PreserveReferences}

func mustUnmarshal[T any](t *testing.T, input string, opts *codec.Options) T {
	t.Helper()
	var out T
	if err := codec.Unmarshal([]byte(input), &out, opts); err != nil {
		t.Fatalf("Unmarshal %#q failed: %v", input, err)
	}
	return out
}

func TestUnmarshalBasic(t *testing.T) {
	t.Run("Scalars", func(t *testing.T) {
		if got := mustUnmarshal[string](t, `"hello"`, nil); got != "hello" {
			t.Errorf("Got %q, want hello", got)
		}
		if got := mustUnmarshal[int](t, `-25`, nil); got != -25 {
			t.Errorf("Got %d, want -25", got)
		}
		if got := mustUnmarshal[float64](t, `2.5`, nil); got != 2.5 {
			t.Errorf("Got %v, want 2.5", got)
		}
		if got := mustUnmarshal[bool](t, `true`, nil); !got {
			t.Error("Got false, want true")
		}
		if got := mustUnmarshal[*int](t, `null`, nil); got != nil {
			t.Errorf("Got %v, want nil", got)
		}
	})

	t.Run("Composites", func(t *testing.T) {
		got := mustUnmarshal[Employee](t, `{"Name":"Ann","Subordinates":[{"Name":"Bob"}]}`, nil)
		want := Employee{Name: "Ann", Subordinates: []*Employee{{Name: "Bob"}}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Unmarshal: (-want, +got)\n%s", diff)
		}
	})

	t.Run("Any", func(t *testing.T) {
		got := mustUnmarshal[any](t, `{"a":[1,2.5,null,true,"x"]}`, nil)
		want := map[string]any{"a": []any{int64(1), 2.5, nil, true, "x"}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Unmarshal: (-want, +got)\n%s", diff)
		}
	})

	t.Run("Maps", func(t *testing.T) {
		got := mustUnmarshal[map[int][]string](t, `{"3":["a"],"5":[]}`, nil)
		want := map[int][]string{3: {"a"}, 5: {}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Unmarshal: (-want, +got)\n%s", diff)
		}
	})

	t.Run("FixedArray", func(t *testing.T) {
		got := mustUnmarshal[[3]int](t, `[1,2]`, nil)
		if want := [3]int{1, 2, 0}; got != want {
			t.Errorf("Got %v, want %v", got, want)
		}
	})

	t.Run("UnknownMembersSkipped", func(t *testing.T) {
		got := mustUnmarshal[Employee](t, `{"Name":"Ann","Extra":{"deep":[{"x":1}]},"Manager":null}`, nil)
		if got.Name != "Ann" || got.Manager != nil {
			t.Errorf("Got %+v, want Name=Ann", got)
		}
	})
}

func TestUnmarshalSelfReference(t *testing.T) {
	e := mustUnmarshal[*Employee](t, `{"$id":"1","Name":"boss","Manager":{"$ref":"1"}}`, popts)
	if e.Name != "boss" {
		t.Errorf("Name: got %q, want boss", e.Name)
	}
	if e.Manager != e {
		t.Errorf("Manager: got %p, want %p (the root)", e.Manager, e)
	}
}

func TestUnmarshalSharedSubobject(t *testing.T) {
	e := mustUnmarshal[*Employee](t,
		`{"$id":"1","Name":"Ann","Manager":{"$id":"2","Name":"Bob"},"Manager2":{"$ref":"2"}}`, popts)
	if e.Manager == nil || e.Manager.Name != "Bob" {
		t.Fatalf("Manager: got %+v, want Bob", e.Manager)
	}
	if e.Manager2 != e.Manager {
		t.Errorf("Manager2: got %p, want %p (shared with Manager)", e.Manager2, e.Manager)
	}
}

func TestUnmarshalForwardScopeReference(t *testing.T) {
	e := mustUnmarshal[*Employee](t,
		`{"$id":"1","Subordinates":{"$id":"2","$values":[{"$id":"3","Name":"A","Subordinates":{"$ref":"2"}}]}}`, popts)
	s1, s2 := e.Subordinates, e.Subordinates[0].Subordinates
	if len(s1) != 1 || len(s2) != 1 {
		t.Fatalf("Subordinate lengths: got %d, %d, want 1, 1", len(s1), len(s2))
	}
	if &s1[0] != &s2[0] {
		t.Error("Subordinate lists are not the same list")
	}
}

func TestUnmarshalSelfContainingArray(t *testing.T) {
	v := mustUnmarshal[any](t, `{"$id":"1","$values":[{"$ref":"1"},{"$ref":"1"},{"$ref":"1"}]}`, popts)
	root, ok := v.([]any)
	if !ok {
		t.Fatalf("Got %T, want []any", v)
	}
	if len(root) != 3 {
		t.Fatalf("Length: got %d, want 3", len(root))
	}
	for i, el := range root {
		in, ok := el.([]any)
		if !ok {
			t.Fatalf("Element %d: got %T, want []any", i, el)
		}
		if &in[0] != &root[0] {
			t.Errorf("Element %d does not share the root's storage", i)
		}
	}
}

func TestUnmarshalPreservedArrays(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		got := mustUnmarshal[[]int](t, `{"$id":"1","$values":[]}`, popts)
		if got == nil || len(got) != 0 {
			t.Errorf("Got %v, want empty non-nil slice", got)
		}
	})

	t.Run("SharedSlice", func(t *testing.T) {
		got := mustUnmarshal[map[string][]int](t,
			`{"$id":"1","a":{"$id":"2","$values":[1,2]},"b":{"$ref":"2"}}`, popts)
		a, b := got["a"], got["b"]
		if diff := cmp.Diff([]int{1, 2}, a); diff != "" {
			t.Errorf("a: (-want, +got)\n%s", diff)
		}
		if len(b) != 2 || &a[0] != &b[0] {
			t.Error("a and b are not the same slice")
		}
	})

	t.Run("IdAfterMembersTolerated", func(t *testing.T) {
		// An identifier that is not the first member still names the object.
		got := mustUnmarshal[map[string]*Employee](t,
			`{"a":{"Name":"Ann","$id":"7"},"b":{"$ref":"7"}}`, popts)
		if got["a"] != got["b"] {
			t.Error("a and b are not the same object")
		}
	})
}

func TestUnmarshalUnknownRef(t *testing.T) {
	t.Run("Member", func(t *testing.T) {
		e := mustUnmarshal[*Employee](t, `{"$id":"1","Name":"X","Manager":{"$ref":"99"}}`, popts)
		if e.Manager != nil {
			t.Errorf("Manager: got %+v, want nil", e.Manager)
		}
	})
	t.Run("Root", func(t *testing.T) {
		e := mustUnmarshal[*Employee](t, `{"$ref":"99"}`, popts)
		if e != nil {
			t.Errorf("Root: got %+v, want nil", e)
		}
	})
	t.Run("Element", func(t *testing.T) {
		got := mustUnmarshal[[]any](t, `{"$id":"1","$values":[{"$ref":"99"},5]}`, popts)
		want := []any{nil, int64(5)}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Unmarshal: (-want, +got)\n%s", diff)
		}
	})
}

func TestUnmarshalMetadataErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  codec.ErrorKind
		path  string
	}{
		{"RefWithTrailingMember",
			`{"$id":"1","Name":"X","Manager":{"$ref":"1","Name":"Y"}}`,
			codec.ReferenceObjectHasOtherProperties, `$.Manager`},
		{"RefWithLeadingMember",
			`{"Manager":{"Name":"Y","$ref":"1"}}`,
			codec.ReferenceObjectHasOtherProperties, `$.Manager`},
		{"RefWithId",
			`{"Manager":{"$id":"2","$ref":"1"}}`,
			codec.ReferenceObjectHasOtherProperties, `$.Manager`},
		{"IdAfterRef",
			`{"Manager":{"$ref":"1","$id":"2"}}`,
			codec.ReferenceObjectHasOtherProperties, `$.Manager`},
		{"DuplicateIdentifier",
			`{"$id":"1","Manager":{"$id":"1","Name":"B"}}`,
			codec.DuplicateIdentifier, `$.Manager.$id`},
		{"DuplicateIdInOneObject",
			`{"$id":"1","$id":"2"}`,
			codec.DuplicateIdentifier, `$.$id`},
		{"IdMustBeString",
			`{"$id":1}`,
			codec.UnexpectedMetadata, `$.$id`},
		{"RefMustBeString",
			`{"Manager":{"$ref":1}}`,
			codec.UnexpectedMetadata, `$.Manager.$ref`},
		{"ValuesScalar",
			`{"Subordinates":{"$id":"1","$values":5}}`,
			codec.PreservedArrayMalformed, `$.Subordinates.$values`},
		{"ValuesNull",
			`{"Subordinates":{"$id":"1","$values":null}}`,
			codec.PreservedArrayMalformed, `$.Subordinates.$values`},
		{"ValuesObject",
			`{"Subordinates":{"$id":"1","$values":{}}}`,
			codec.PreservedArrayMalformed, `$.Subordinates.$values`},
		{"ValuesBeforeId",
			`{"Subordinates":{"$values":[]}}`,
			codec.PreservedArrayMalformed, `$.Subordinates`},
		{"WrapperMissingValues",
			`{"Subordinates":{"$id":"1"}}`,
			codec.PreservedArrayMalformed, `$.Subordinates`},
		{"WrapperEmpty",
			`{"Subordinates":{}}`,
			codec.PreservedArrayMalformed, `$.Subordinates`},
		{"WrapperRegularMember",
			`{"Subordinates":{"$id":"1","len":3}}`,
			codec.PreservedArrayMalformed, `$.Subordinates`},
		{"WrapperUnknownMetadata",
			`{"Subordinates":{"$id":"1","$extra":3}}`,
			codec.UnexpectedMetadata, `$.Subordinates.$extra`},
		{"ValuesInStructContext",
			`{"Manager":{"$id":"1","$values":[]}}`,
			codec.UnexpectedMetadata, `$.Manager.$values`},
		{"ValuesWithoutIdAtAnySlot",
			`{"$values":[1,2]}`,
			codec.UnexpectedMetadata, `$.$values`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var e *Employee
			err := codec.Unmarshal([]byte(test.input), &e, popts)
			if test.name == "ValuesWithoutIdAtAnySlot" {
				var v any
				err = codec.Unmarshal([]byte(test.input), &v, popts)
			}
			checkKind(t, err, test.kind, test.path)
		})
	}
}

func TestUnmarshalPreservationTypeErrors(t *testing.T) {
	type fixed struct {
		A [2]int `json:"A"`
	}

	t.Run("WrapperAtFixedArray", func(t *testing.T) {
		var v fixed
		err := codec.Unmarshal([]byte(`{"A":{"$id":"1","$values":[1,2]}}`), &v, popts)
		checkKind(t, err, codec.UnresolvableTypeForPreservation, `$.A`)
	})

	t.Run("RefAtFixedArray", func(t *testing.T) {
		var v fixed
		err := codec.Unmarshal([]byte(`{"A":{"$ref":"1"}}`), &v, popts)
		checkKind(t, err, codec.UnresolvableTypeForPreservation, `$.A`)
	})

	t.Run("RefAtValueStructSlot", func(t *testing.T) {
		type rec struct {
			P Point `json:"P"`
		}
		var v rec
		err := codec.Unmarshal([]byte(`{"P":{"$ref":"1"}}`), &v, popts)
		checkKind(t, err, codec.UnexpectedMetadata, `$.P.$ref`)
	})

	t.Run("NestedPreservationInsideFixedArrayWorks", func(t *testing.T) {
		// Preserving the elements of a fixed array is fine; only the
		// collection itself cannot be preserved.
		type rec struct {
			A [2]*Employee `json:"A"`
		}
		var v rec
		const input = `{"A":[{"$id":"1","Name":"X"},{"$ref":"1"}]}`
		if err := codec.Unmarshal([]byte(input), &v, popts); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if v.A[0] == nil || v.A[0] != v.A[1] {
			t.Errorf("Got %+v, want both elements shared", v.A)
		}
	})
}

func TestUnmarshalIncompatibleReference(t *testing.T) {
	type rec struct {
		A *Employee `json:"A"`
		B []int     `json:"B"`
	}
	var v rec
	err := codec.Unmarshal([]byte(`{"A":{"$id":"1","Name":"X"},"B":{"$ref":"1"}}`), &v, popts)
	checkKind(t, err, codec.IncompatibleReference, `$.B`)
}

func TestUnmarshalMetadataOff(t *testing.T) {
	// Without PreserveReferences, "$"-prefixed keys are ordinary members.
	got := mustUnmarshal[map[string]any](t, `{"$id":"1","$ref":"2","x":3}`, nil)
	want := map[string]any{"$id": "1", "$ref": "2", "x": int64(3)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unmarshal: (-want, +got)\n%s", diff)
	}
}

func TestUnmarshalInputErrors(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		var v any
		err := codec.Unmarshal(nil, &v, nil)
		checkKind(t, err, codec.IncompleteInput, "")
	})

	t.Run("Truncated", func(t *testing.T) {
		var v any
		err := codec.Unmarshal([]byte(`{"a":[1,2`), &v, nil)
		checkKind(t, err, codec.IncompleteInput, "")
	})

	t.Run("TrailingInput", func(t *testing.T) {
		var v any
		err := codec.Unmarshal([]byte(`{"a":1} {"b":2}`), &v, nil)
		if !errors.Is(err, codec.ErrExtraInput) {
			t.Errorf("Got %v, want %v", err, codec.ErrExtraInput)
		}
	})

	t.Run("DepthExceeded", func(t *testing.T) {
		input := strings.Repeat("[", codec.DefaultMaxDepth+1) +
			strings.Repeat("]", codec.DefaultMaxDepth+1)
		var v any
		err := codec.Unmarshal([]byte(input), &v, nil)
		checkKind(t, err, codec.DepthExceeded, "")
	})

	t.Run("NotAPointer", func(t *testing.T) {
		var v any
		if err := codec.Unmarshal([]byte(`1`), v, nil); err == nil {
			t.Error("Unmarshal did not reject a non-pointer target")
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		var v Employee
		err := codec.Unmarshal([]byte(`{"Name":[1]}`), &v, nil)
		checkKind(t, err, codec.TypeMismatch, `$.Name`)
	})
}

func TestRoundTrip(t *testing.T) {
	t.Run("SelfReference", func(t *testing.T) {
		e := &Employee{Name: "boss"}
		e.Manager = e
		data, err := codec.Marshal(e, popts)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		got := mustUnmarshal[*Employee](t, string(data), popts)
		if got.Manager != got {
			t.Error("Round trip did not preserve the self-reference")
		}
	})

	t.Run("SharedGraph", func(t *testing.T) {
		bob := &Employee{Name: "Bob"}
		team := []*Employee{bob}
		root := &Employee{Name: "Ann", Manager: bob, Manager2: bob, Subordinates: team}
		bob.Subordinates = team

		data, err := codec.Marshal(root, popts)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		got := mustUnmarshal[*Employee](t, string(data), popts)
		if got.Manager != got.Manager2 {
			t.Error("Manager and Manager2 are not shared")
		}
		if got.Manager.Name != "Bob" {
			t.Errorf("Manager name: got %q, want Bob", got.Manager.Name)
		}
		s1, s2 := got.Subordinates, got.Manager.Subordinates
		if len(s1) != 1 || len(s2) != 1 || &s1[0] != &s2[0] {
			t.Error("Subordinate lists are not shared")
		}
	})

	t.Run("Reserialize", func(t *testing.T) {
		// A preserved document re-encodes to the same bytes after a round
		// trip through a generic value.
		const input = `{"$id":"1","$values":[{"$ref":"1"},{"$ref":"1"}]}`
		v := mustUnmarshal[any](t, input, popts)
		data, err := codec.Marshal(v, popts)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if got := string(data); got != input {
			t.Errorf("Reserialize: got %#q, want %#q", got, input)
		}
	})

	t.Run("IgnoreOutputReparses", func(t *testing.T) {
		e := &Employee{Name: "boss"}
		e.Manager = e
		data, err := codec.Marshal(e, &codec.Options{References: codec.IgnoreCycles})
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		got := mustUnmarshal[*Employee](t, string(data), popts)
		if got.Name != "boss" || got.Manager != nil {
			t.Errorf("Got %+v, want Name=boss with no Manager", got)
		}
	})
}
