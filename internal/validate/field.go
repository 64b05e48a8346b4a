// Package validate enforces per-field syntax rules on untrusted form input
// and sanitizes it before it is stored, logged or mailed.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Type is the semantic type of a field.
type Type int

const (
	TypeName Type = iota + 1
	TypeEmail
	TypePhone
	TypeFreeText
	TypeEnum
)

func (t Type) String() string {
	switch t {
	case TypeName:
		return "name"
	case TypeEmail:
		return "email"
	case TypePhone:
		return "phone"
	case TypeFreeText:
		return "free_text"
	case TypeEnum:
		return "enum"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

const (
	nameMin     = 2
	nameMax     = 100
	textMin     = 2
	textMax     = 100
	emailMax    = 254
	phoneMin    = 7
	phoneMax    = 25
	phoneDigits = 7
	maxRepeat   = 5
)

var (
	namePattern  = regexp.MustCompile(`^[\p{L}\p{M} '\-]+$`)
	textPattern  = regexp.MustCompile(`^[\p{L}\p{M}\p{N} .,\-'/()]+$`)
	phonePattern = regexp.MustCompile(`^[0-9+ ()\-]+$`)
	emailPattern = regexp.MustCompile(
		"^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?" +
			`(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
)

// Result is the verdict for a single field.
type Result struct {
	Valid bool
	Error string
}

func ok() Result { return Result{Valid: true} }

func fail(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Field validates one value of type t. label names the field in the error
// message; options is the allow-list for TypeEnum.
func Field(t Type, label, value string, options []string) Result {
	v := normalize(value)
	if v == "" {
		return fail("%s is required", label)
	}

	switch t {
	case TypeName:
		return checkText(label, v, nameMin, nameMax, namePattern)
	case TypeFreeText:
		return checkText(label, v, textMin, textMax, textPattern)
	case TypeEmail:
		return checkEmail(label, v)
	case TypePhone:
		return checkPhone(label, v)
	case TypeEnum:
		for _, opt := range options {
			if v == opt {
				return ok()
			}
		}
		return fail("%s is not a valid option", label)
	default:
		return fail("%s has an unsupported type", label)
	}
}

// normalize is the Trimmed stage: surrounding space removed, NFC composed.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func checkText(label, v string, minLen, maxLen int, pattern *regexp.Regexp) Result {
	if n := utf8.RuneCountInString(v); n < minLen || n > maxLen {
		return fail("%s must be between %d and %d characters", label, minLen, maxLen)
	}
	if !pattern.MatchString(v) {
		return fail("%s contains invalid characters", label)
	}
	if hasRepeatedRun(v, maxRepeat) {
		return fail("%s contains too many repeated characters", label)
	}
	return ok()
}

func checkEmail(label, v string) Result {
	if len(v) > emailMax {
		return fail("%s must be at most %d characters", label, emailMax)
	}
	lower := strings.ToLower(v)
	if strings.ContainsAny(v, "<>") || strings.Contains(lower, "script") {
		return fail("%s contains invalid characters", label)
	}
	if !emailPattern.MatchString(v) {
		return fail("%s is not a valid email address", label)
	}
	return ok()
}

func checkPhone(label, v string) Result {
	if n := utf8.RuneCountInString(v); n < phoneMin || n > phoneMax {
		return fail("%s must be between %d and %d characters", label, phoneMin, phoneMax)
	}
	if !phonePattern.MatchString(v) {
		return fail("%s contains invalid characters", label)
	}
	digits := 0
	for _, r := range v {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < phoneDigits {
		return fail("%s must contain at least %d digits", label, phoneDigits)
	}
	return ok()
}

// hasRepeatedRun reports n or more identical consecutive runes.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for i, r := range []rune(s) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}
