// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package refjson

import (
	"errors"
	"strings"

	"github.com/creachadair/refjson/internal/escape"

	"go4.org/mem"
)

// Quote encodes src as a JSON string value. The contents are escaped and
// double quotation marks are added.
func Quote(src string) string {
	buf := make([]byte, 0, len(src)+2)
	buf = append(buf, '"')
	buf = escape.AppendQuote(buf, mem.S(src))
	buf = append(buf, '"')
	return string(buf)
}

// Unquote decodes a JSON string value.  Double quotation marks are removed,
// and escape sequences are replaced with their unescaped equivalents.
//
// Invalid escapes are replaced by the Unicode replacement rune. Unquote
// reports an error for an incomplete escape sequence.
func Unquote(src string) ([]byte, error) {
	if len(src) < 2 || !strings.HasPrefix(src, `"`) || !strings.HasSuffix(src, `"`) {
		return nil, errors.New("missing quotations")
	}
	return escape.Unquote(mem.S(src[1 : len(src)-1]))
}

// UnquoteText decodes the raw text of a quoted string token, as delivered by
// a scanner or handler anchor, into its plain string value.
func UnquoteText(text []byte) (string, error) {
	if len(text) < 2 || text[0] != '"' || text[len(text)-1] != '"' {
		return "", errors.New("missing quotations")
	}
	dec, err := escape.Unquote(mem.B(text[1 : len(text)-1]))
	if err != nil {
		return "", err
	}
	return string(dec), nil
}
