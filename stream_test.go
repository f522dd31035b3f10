// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package refjson_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/creachadair/refjson"
	"github.com/google/go-cmp/cmp"
)

func TestStream(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "."},
		{"   ", "."},

		{"true false null", `
Value true <true>
Value false <false>
Value null <null>
.`},

		{`0 5 -6.32 0.1e-2`, `
Value integer <0>
Value integer <5>
Value number <-6.32>
Value number <0.1e-2>
.`},

		{`"" "a b c" "a\tb" "a b"`, `
Value string <"">
Value string <"a b c">
Value string <"a\tb">
Value string <"a b">
.`},

		{`{}`, "BeginObject\nEndObject\n."},

		{`{"a":15}`, `
BeginObject
BeginMember <"a">
Value integer <15>
EndMember "}"
EndObject
.`},

		{`{"$id":"1","$values":[true]}`, `
BeginObject
BeginMember <"$id">
Value string <"1">
EndMember ","
BeginMember <"$values">
BeginArray
Value true <true>
EndArray
EndMember "}"
EndObject
.`},

		{`[]`, "BeginArray\nEndArray\n."},
	}

	for _, test := range tests {
		st := refjson.NewStream(strings.NewReader(test.input))
		th := new(testHandler)
		if err := st.Parse(th); err != nil {
			t.Errorf("Parse failed: %v", err)
		}

		if diff := diffStrings(test.want, th.output()); diff != "" {
			t.Errorf("Input: %#q\nOutput: (-want, +got)\n%s", test.input, diff)
		}
	}
}

func TestStreamErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		// Various kinds of unbalanced object bits.
		{`{`, `BeginObject`},
		{`}`, ``},
		{`{false:1}`, `BeginObject`},
		{`{"true":}`, `
BeginObject
BeginMember <"true">`},
		{`{"true":1,`, `
BeginObject
BeginMember <"true">
Value integer <1>
EndMember ","`},
		{`{"a":1,}`, `
BeginObject
BeginMember <"a">
Value integer <1>
EndMember ","`},

		// Unbalanced array bits.
		{`[`, `BeginArray`},
		{`]`, ``},
		{`[15,`, `
BeginArray
Value integer <15>`},
		{`[15,]`, `
BeginArray
Value integer <15>`},

		// Invalid values.
		{`1 2.0 forthright`, `
Value integer <1>
Value number <2.0>`},
		{`"what did you`, ``},
	}

	for _, test := range tests {
		st := refjson.NewStream(strings.NewReader(test.input))
		th := new(testHandler)
		err := st.Parse(th)
		if err == nil {
			t.Errorf("Input %#q: Parse did not report an error", test.input)
			continue
		}

		if diff := diffStrings(test.want, th.output()); diff != "" {
			t.Errorf("Input: %#q\nOutput: (-want, +got)\n%s", test.input, diff)
		}
	}
}

func TestParseOne(t *testing.T) {
	const input = `{ "love": true } [] "ok"`
	const want = `
BeginObject
BeginMember <"love">
Value true <true>
EndMember "}"
EndObject
---
BeginArray
EndArray
---
Value string <"ok">
---
.`
	th := new(testHandler)

	st := refjson.NewStream(strings.NewReader(input))
	for {
		err := st.ParseOne(th)
		if err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("ParseOne failed: %v", err)
		}
		th.pr("---")
	}

	if diff := diffStrings(want, th.output()); diff != "" {
		t.Errorf("Input: %#q\nOutput: (-want, +got)\n%s", input, diff)
	}
}

func diffStrings(want, got string) string {
	return cmp.Diff(strings.Split(strings.TrimSpace(want), "\n"),
		strings.Split(strings.TrimSpace(got), "\n"))
}

type testHandler struct {
	buf bytes.Buffer
}

func (t *testHandler) pr(msg string, args ...any) {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprintf(&t.buf, msg, args...)
}

func (t *testHandler) output() string { return t.buf.String() }

func (t *testHandler) BeginObject(loc refjson.Anchor) error { t.pr("BeginObject"); return nil }
func (t *testHandler) EndObject(loc refjson.Anchor) error   { t.pr("EndObject"); return nil }
func (t *testHandler) BeginArray(loc refjson.Anchor) error  { t.pr("BeginArray"); return nil }
func (t *testHandler) EndArray(loc refjson.Anchor) error    { t.pr("EndArray"); return nil }

func (t *testHandler) BeginMember(loc refjson.Anchor) error {
	t.pr("BeginMember <%s>", string(loc.Text()))
	return nil
}

func (t *testHandler) EndMember(loc refjson.Anchor) error {
	t.pr("EndMember %q", string(loc.Text()))
	return nil
}

func (t *testHandler) Value(loc refjson.Anchor) error {
	t.pr("Value %v <%s>", loc.Token(), string(loc.Text()))
	return nil
}

func (t *testHandler) EndOfInput(loc refjson.Anchor) { t.pr(".") }
