// Package validation bounds-checks and cleans raw text before it reaches a provider.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const DefaultMaxTextLength = 10000

type Reason string

const (
	ReasonEmpty           Reason = "Empty"
	ReasonTooLong         Reason = "TooLong"
	ReasonUnknownProvider Reason = "UnknownProvider"
	ReasonMalformedBody   Reason = "MalformedBody"
)

// InvalidInputError is a client-caused failure.
type InvalidInputError struct {
	Reason Reason
	Detail string
}

func (e *InvalidInputError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Reason, e.Detail)
}

// Is lets errors.Is match on the reason alone.
func (e *InvalidInputError) Is(target error) bool {
	t, ok := target.(*InvalidInputError)
	return ok && t.Reason == e.Reason
}

var (
	ErrEmpty   = &InvalidInputError{Reason: ReasonEmpty}
	ErrTooLong = &InvalidInputError{Reason: ReasonTooLong}
)

// AsInvalidInput unwraps err into an InvalidInputError when it is one.
func AsInvalidInput(err error) (*InvalidInputError, bool) {
	var invalid *InvalidInputError
	if errors.As(err, &invalid) {
		return invalid, true
	}
	return nil, false
}

// Validate normalizes raw and checks it against maxLen (counted in runes).
// maxLen <= 0 falls back to DefaultMaxTextLength.
func Validate(raw string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLength
	}

	text := Normalize(raw)
	if text == "" {
		return "", &InvalidInputError{Reason: ReasonEmpty}
	}

	if n := utf8.RuneCountInString(text); n > maxLen {
		return "", &InvalidInputError{
			Reason: ReasonTooLong,
			Detail: fmt.Sprintf("%d characters, limit is %d", n, maxLen),
		}
	}

	return text, nil
}

// Normalize applies NFC, drops control characters and collapses whitespace.
func Normalize(raw string) string {
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "")
	}
	raw = norm.NFC.String(raw)

	var b strings.Builder
	b.Grow(len(raw))
	pendingSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r), r == '\uFEFF':
			// dropped
		default:
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
