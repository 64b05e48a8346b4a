package validate

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// maxPasses caps the fixed-point removal loop.
const maxPasses = 10

var removals = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*/?\s*script[^>]*>`),
	regexp.MustCompile(`(?i)<\s*/?\s*iframe[^>]*>`),
	regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
}

var strict = bluemonday.StrictPolicy()

// Sanitize neutralizes value for type t. It runs independently of
// validation: dangerous substrings are removed until a fixed point, the
// remainder is reduced to the characters allowed for t, and a strict HTML
// policy strips anything tag shaped. No allow-list admits '<', '>' or '&'.
// Emails skip the removal rules and only go through the allow-list. For
// TypeEnum only an exact option survives.
func Sanitize(t Type, value string, options []string) string {
	v := normalize(value)
	if t == TypeEnum {
		for _, opt := range options {
			if v == opt {
				return opt
			}
		}
		return ""
	}

	if t == TypeEmail {
		// the email allow-list has no '<', '>' or ':', and the removal rules
		// would cut into valid local parts such as "ronald=smith"
		v = allowList(t, v)
	} else {
		v = stripDangerous(v)
		// removing characters can bring pattern fragments together again
		v = stripDangerous(allowList(t, v))
	}
	v = html.UnescapeString(strict.Sanitize(v))
	return strings.TrimSpace(v)
}

// stripDangerous reapplies every removal rule until the output stops
// changing, so fragments cannot reassemble into a removed pattern.
func stripDangerous(s string) string {
	for range maxPasses {
		before := s
		for _, re := range removals {
			s = re.ReplaceAllString(s, "")
		}
		if s == before {
			break
		}
	}
	return s
}

func allowList(t Type, s string) string {
	var keep func(rune) bool
	switch t {
	case TypeName:
		keep = func(r rune) bool {
			return unicode.IsLetter(r) || unicode.Is(unicode.M, r) || r == ' ' || r == '-' || r == '\''
		}
	case TypeFreeText:
		keep = func(r rune) bool {
			return unicode.IsLetter(r) || unicode.Is(unicode.M, r) || unicode.IsNumber(r) ||
				strings.ContainsRune(" .,-'/()", r)
		}
	case TypePhone:
		keep = func(r rune) bool {
			return (r >= '0' && r <= '9') || strings.ContainsRune("+ ()-", r)
		}
	case TypeEmail:
		keep = func(r rune) bool {
			return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) ||
				strings.ContainsRune(".!#$%'*+/=?^_{|}~-@", r))
		}
	default:
		return ""
	}

	return strings.Map(func(r rune) rune {
		if keep(r) {
			return r
		}
		return -1
	}, s)
}
