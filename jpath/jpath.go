// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package jpath implements a minimal JSONPath expression over the subset of
// the grammar needed to address a single location in a JSON document: member
// lookups and array indices.
//
//	$.alpha.bravo[3]['charlie delta'].$id
//
// A Path both formats (for error reporting) and parses (for lookup tools).
package jpath

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// An Op is a path operator.
type Op byte

const (
	Invalid Op = iota // invalid operator
	Member            // member lookup (.name or ['name'])
	Index             // array index lookup ([n])
)

// A Step is a single step of a path: a member name or an array index.
type Step struct {
	Op    Op
	Name  string // member name, when Op == Member
	Index int    // array offset, when Op == Index
}

// A Path addresses a location in a JSON document as a sequence of steps from
// the root.
type Path []Step

// At returns a copy of p extended with an array index step.
func (p Path) At(i int) Path { return append(p[:len(p):len(p)], Step{Op: Index, Index: i}) }

// Field returns a copy of p extended with a member lookup step.
func (p Path) Field(name string) Path {
	return append(p[:len(p):len(p)], Step{Op: Member, Name: name})
}

// wordRE matches member names that can be rendered in dotted form. A leading
// "$" is permitted so that metadata keys render as "$.a.$id" rather than
// "$.a['$id']".
var wordRE = regexp.MustCompile(`^\$?\w+$`)

func (p Path) String() string {
	var buf strings.Builder
	buf.WriteString("$")
	for _, s := range p {
		switch s.Op {
		case Member:
			if wordRE.MatchString(s.Name) {
				buf.WriteString(".")
				buf.WriteString(s.Name)
			} else {
				fmt.Fprintf(&buf, "['%s']", strings.ReplaceAll(s.Name, "'", `\'`))
			}
		case Index:
			fmt.Fprintf(&buf, "[%d]", s.Index)
		default:
			buf.WriteString(".<invalid>")
		}
	}
	return buf.String()
}

// Parse parses s as a path expression.
func Parse(s string) (Path, error) {
	t, ok := strings.CutPrefix(s, "$")
	if !ok {
		return nil, errors.New("missing root marker")
	}
	var steps Path
	for t != "" {
		step, rest, err := parseStep(t)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
		t = rest
	}
	return steps, nil
}

var (
	nameRE  = regexp.MustCompile(`^(\$?\w+)`)
	indexRE = regexp.MustCompile(`^(-?\d+)`)
	quoteRE = regexp.MustCompile(`^'((?:[^'\\]|\\.)*)'`)
)

func parseStep(s string) (_ Step, rest string, _ error) {
	if t, ok := strings.CutPrefix(s, "."); ok {
		if m := nameRE.FindStringSubmatch(t); m != nil {
			return Step{Op: Member, Name: m[1]}, t[len(m[0]):], nil
		}
		return Step{}, s, errors.New("invalid .name")
	}
	if t, ok := strings.CutPrefix(s, "["); ok {
		if m := indexRE.FindStringSubmatch(t); m != nil {
			u, ok := strings.CutPrefix(t[len(m[0]):], "]")
			if !ok {
				return Step{}, t, errors.New("missing close bracket")
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return Step{}, t, err
			}
			return Step{Op: Index, Index: n}, u, nil
		}
		if m := quoteRE.FindStringSubmatch(t); m != nil {
			u, ok := strings.CutPrefix(t[len(m[0]):], "]")
			if !ok {
				return Step{}, t, errors.New("missing close bracket")
			}
			name := strings.NewReplacer(`\'`, "'", `\\`, `\`).Replace(m[1])
			return Step{Op: Member, Name: name}, u, nil
		}
		return Step{}, t, errors.New("invalid bracket step")
	}
	return Step{}, s, errors.New("invalid path step")
}
