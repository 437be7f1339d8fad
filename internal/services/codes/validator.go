// Package codes validates and corrects product code tokens read by OCR.
//
// A canonical code is 2 to 5 uppercase letters followed by 3 to 9 digits.
package codes

import (
	"regexp"
	"sort"
	"strings"
)

const (
	MinLetters = 2
	MaxLetters = 5
	MinDigits  = 3
	MaxDigits  = 9
)

var canonical = regexp.MustCompile(`^[A-Z]{2,5}[0-9]{3,9}$`)

// IsCanonical reports whether s already has the canonical code shape.
func IsCanonical(s string) bool {
	return canonical.MatchString(s)
}

// Validator accepts, corrects or rejects raw tokens. It is safe for
// concurrent use once built.
type Validator struct {
	prefixes []string
	embedded *regexp.Regexp
}

// NewValidator builds a Validator for the given prefix catalog. Entries that
// are not 2 to 5 letters are ignored.
func NewValidator(prefixes []string) *Validator {
	seen := make(map[string]struct{})
	var clean []string
	for _, p := range prefixes {
		p = strings.ToUpper(strings.TrimSpace(p))
		if len(p) < MinLetters || len(p) > MaxLetters || !allLetters(p) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		clean = append(clean, p)
	}

	// longest prefix wins when several match
	sort.SliceStable(clean, func(i, j int) bool { return len(clean[i]) > len(clean[j]) })

	v := &Validator{prefixes: clean}
	if len(clean) > 0 {
		quoted := make([]string, len(clean))
		for i, p := range clean {
			quoted[i] = regexp.QuoteMeta(p)
		}
		v.embedded = regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)[0-9]{3,9}`)
	}
	return v
}

// Prefixes returns the active catalog, longest first.
func (v *Validator) Prefixes() []string {
	out := make([]string, len(v.prefixes))
	copy(out, v.prefixes)
	return out
}

// Validate returns the canonical form of raw, or false if the token cannot be
// read as a code. Tokens that already match the code pattern are returned as
// read; corrections only apply to tokens that do not.
func (v *Validator) Validate(raw string) (string, bool) {
	token := normalize(raw)
	if token == "" {
		return "", false
	}

	if IsCanonical(token) {
		return token, true
	}
	if code, ok := v.withPrefix(token); ok {
		return code, true
	}

	corrected, ok := correct(token)
	if !ok {
		return "", false
	}
	if code, ok := v.withPrefix(corrected); ok {
		return code, true
	}
	if IsCanonical(corrected) {
		return corrected, true
	}
	return "", false
}

// withPrefix reads token as a catalog prefix followed by digits, mapping
// look-alike letters in the remainder to digits.
func (v *Validator) withPrefix(token string) (string, bool) {
	for _, p := range v.prefixes {
		if !strings.HasPrefix(token, p) {
			continue
		}
		digits, ok := asDigits(token[len(p):])
		if !ok || len(digits) < MinDigits || len(digits) > MaxDigits {
			continue
		}
		return p + digits, true
	}
	return "", false
}

func normalize(raw string) string {
	return strings.ToUpper(strings.Trim(raw, " \t\r\n.,;:|_-'\"`"))
}

func allLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isLetter(rune(s[i])) {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool { return r >= 'A' && r <= 'Z' }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
