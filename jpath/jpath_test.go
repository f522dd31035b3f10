// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package jpath_test

import (
	"testing"

	"github.com/creachadair/refjson/jpath"
	"github.com/google/go-cmp/cmp"
)

func TestString(t *testing.T) {
	tests := []struct {
		path jpath.Path
		want string
	}{
		{nil, "$"},
		{jpath.Path{}.Field("alpha"), "$.alpha"},
		{jpath.Path{}.Field("alpha").Field("bravo"), "$.alpha.bravo"},
		{jpath.Path{}.Field("alpha").At(3), "$.alpha[3]"},
		{jpath.Path{}.At(0).At(1), "$[0][1]"},
		{jpath.Path{}.Field("$id"), "$.$id"},
		{jpath.Path{}.Field("Manager").Field("$ref"), "$.Manager.$ref"},
		{jpath.Path{}.Field("a b"), "$['a b']"},
		{jpath.Path{}.Field("it's"), `$['it\'s']`},
	}
	for _, test := range tests {
		if got := test.path.String(); got != test.want {
			t.Errorf("String %v: got %q, want %q", test.path, got, test.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  jpath.Path
	}{
		{"$", nil},
		{"$.alpha", jpath.Path{}.Field("alpha")},
		{"$.alpha.bravo", jpath.Path{}.Field("alpha").Field("bravo")},
		{"$.alpha[3]", jpath.Path{}.Field("alpha").At(3)},
		{"$[0][-1]", jpath.Path{}.At(0).At(-1)},
		{"$.$id", jpath.Path{}.Field("$id")},
		{"$['a b'][2]", jpath.Path{}.Field("a b").At(2)},
		{`$['it\'s']`, jpath.Path{}.Field("it's")},
	}
	for _, test := range tests {
		got, err := jpath.Parse(test.input)
		if err != nil {
			t.Errorf("Parse %q failed: %v", test.input, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("Parse %q: (-want, +got)\n%s", test.input, diff)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",         // missing root
		".foo",     // missing root
		"$.",       // missing name
		"$[",       // missing index
		"$[x]",     // invalid index
		"$[3",      // missing close bracket
		"$['a b'",  // missing close bracket
		"$.a.b[,]", // invalid index
		"$foo",     // step without operator
	}
	for _, input := range tests {
		if got, err := jpath.Parse(input); err == nil {
			t.Errorf("Parse %q: got %v, wanted error", input, got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []string{
		"$",
		"$.alpha",
		"$.alpha.bravo[3].$id",
		"$['a b'][2]",
	}
	for _, input := range tests {
		p, err := jpath.Parse(input)
		if err != nil {
			t.Errorf("Parse %q failed: %v", input, err)
			continue
		}
		if got := p.String(); got != input {
			t.Errorf("Round trip %q: got %q", input, got)
		}
	}
}
