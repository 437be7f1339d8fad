package codes

import "strings"

// ExtractEmbedded finds catalog-prefixed codes inside free text such as the
// concatenation of every fragment read from an image. Matches followed by
// another digit are dropped since they cannot be a whole code.
func (v *Validator) ExtractEmbedded(text string) []string {
	if v.embedded == nil || text == "" {
		return nil
	}
	text = strings.ToUpper(text)

	var found []string
	seen := make(map[string]struct{})
	for _, loc := range v.embedded.FindAllStringIndex(text, -1) {
		if loc[1] < len(text) && isDigit(rune(text[loc[1]])) {
			continue
		}
		code := text[loc[0]:loc[1]]
		if !IsCanonical(code) {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		found = append(found, code)
	}
	return found
}
