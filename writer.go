// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package refjson

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/creachadair/refjson/internal/escape"

	"go4.org/mem"
)

// A Writer emits a stream of JSON tokens to an underlying io.Writer.  The
// methods of a Writer correspond to the events of a [Handler], and the Writer
// inserts commas and colons as required by the grammar so that the caller
// only reports structure and values.
//
// The caller is responsible for calling Flush when the value is complete;
// none of the token methods flushes the underlying writer.
type Writer struct {
	w   *bufio.Writer
	stk []wframe
	buf []byte // scratch for number and string conversion
	err error  // sticky
}

// A wframe records the state of one open object or array.
type wframe struct {
	array bool // true for arrays, false for objects
	n     int  // values emitted so far at this level
	key   bool // object only: a member key has been written, value pending
}

// NewWriter constructs a Writer that emits output to w.
func NewWriter(w io.Writer) *Writer {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &Writer{w: bw}
}

// Err returns the first error reported by any method of w.  Once a method has
// reported an error, all subsequent token methods of w fail with that error.
func (w *Writer) Err() error { return w.err }

// Flush flushes buffered output to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// Depth reports the number of objects and arrays currently open.
func (w *Writer) Depth() int { return len(w.stk) }

// BeginObject opens a new object.
func (w *Writer) BeginObject() error {
	if err := w.beginValue(); err != nil {
		return err
	}
	w.stk = append(w.stk, wframe{array: false})
	return w.writeByte('{')
}

// EndObject closes the most-recently-opened object.
func (w *Writer) EndObject() error {
	if w.err != nil {
		return w.err
	}
	if n := len(w.stk); n == 0 || w.stk[n-1].array {
		return w.setErr(errors.New("unbalanced end of object"))
	} else if w.stk[n-1].key {
		return w.setErr(errors.New("member value missing"))
	}
	w.stk = w.stk[:len(w.stk)-1]
	return w.writeByte('}')
}

// BeginArray opens a new array.
func (w *Writer) BeginArray() error {
	if err := w.beginValue(); err != nil {
		return err
	}
	w.stk = append(w.stk, wframe{array: true})
	return w.writeByte('[')
}

// EndArray closes the most-recently-opened array.
func (w *Writer) EndArray() error {
	if w.err != nil {
		return w.err
	}
	if n := len(w.stk); n == 0 || !w.stk[n-1].array {
		return w.setErr(errors.New("unbalanced end of array"))
	}
	w.stk = w.stk[:len(w.stk)-1]
	return w.writeByte(']')
}

// Name emits the key of an object member. The name is quoted and escaped,
// and the following token must be a value.
func (w *Writer) Name(name string) error {
	if w.err != nil {
		return w.err
	}
	n := len(w.stk)
	if n == 0 || w.stk[n-1].array {
		return w.setErr(errors.New("member key outside object"))
	} else if w.stk[n-1].key {
		return w.setErr(errors.New("member value missing"))
	}
	if w.stk[n-1].n > 0 {
		if err := w.writeByte(','); err != nil {
			return err
		}
	}
	if err := w.writeQuoted(name); err != nil {
		return err
	}
	w.stk[n-1].key = true
	return w.writeByte(':')
}

// String emits a string value. The value is quoted and escaped.
func (w *Writer) String(s string) error {
	if err := w.beginValue(); err != nil {
		return err
	}
	return w.writeQuoted(s)
}

// Int emits an integer value.
func (w *Writer) Int(z int64) error {
	if err := w.beginValue(); err != nil {
		return err
	}
	w.buf = strconv.AppendInt(w.buf[:0], z, 10)
	return w.write(w.buf)
}

// Uint emits an unsigned integer value.
func (w *Writer) Uint(z uint64) error {
	if err := w.beginValue(); err != nil {
		return err
	}
	w.buf = strconv.AppendUint(w.buf[:0], z, 10)
	return w.write(w.buf)
}

// Float emits a floating-point value. Infinities and NaN are not
// representable in JSON and are reported as errors.
func (w *Writer) Float(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return w.setErr(fmt.Errorf("invalid number value %v", f))
	}
	if err := w.beginValue(); err != nil {
		return err
	}
	w.buf = strconv.AppendFloat(w.buf[:0], f, 'g', -1, 64)
	return w.write(w.buf)
}

// Bool emits a Boolean constant.
func (w *Writer) Bool(b bool) error {
	if err := w.beginValue(); err != nil {
		return err
	}
	if b {
		return w.writeString("true")
	}
	return w.writeString("false")
}

// Null emits the null constant.
func (w *Writer) Null() error {
	if err := w.beginValue(); err != nil {
		return err
	}
	return w.writeString("null")
}

// Verbatim emits text as a single value token without validation.  The caller
// is responsible for ensuring text is a well-formed JSON value.
func (w *Writer) Verbatim(text []byte) error {
	if err := w.beginValue(); err != nil {
		return err
	}
	return w.write(text)
}

// beginValue prepares the current frame for a value token: a comma is
// inserted between consecutive array elements and after a completed member,
// and inside an object a value is only permitted while a member key is
// pending.
func (w *Writer) beginValue() error {
	if w.err != nil {
		return w.err
	}
	n := len(w.stk)
	if n == 0 {
		return nil // a root value
	}
	fr := &w.stk[n-1]
	if fr.array {
		if fr.n > 0 {
			if err := w.writeByte(','); err != nil {
				return err
			}
		}
		fr.n++
		return nil
	}
	if !fr.key {
		return w.setErr(errors.New("member value without key"))
	}
	fr.key = false
	fr.n++
	return nil
}

func (w *Writer) writeQuoted(s string) error {
	w.buf = append(w.buf[:0], '"')
	w.buf = escape.AppendQuote(w.buf, mem.S(s))
	w.buf = append(w.buf, '"')
	return w.write(w.buf)
}

func (w *Writer) writeByte(b byte) error {
	if err := w.w.WriteByte(b); err != nil {
		return w.setErr(err)
	}
	return nil
}

func (w *Writer) writeString(s string) error {
	if _, err := w.w.WriteString(s); err != nil {
		return w.setErr(err)
	}
	return nil
}

func (w *Writer) write(text []byte) error {
	if _, err := w.w.Write(text); err != nil {
		return w.setErr(err)
	}
	return nil
}

func (w *Writer) setErr(err error) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}
