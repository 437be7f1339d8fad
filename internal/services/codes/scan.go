package codes

import "strings"

// Look-alike substitutions applied inside the digit run.
var letterToDigit = map[rune]rune{
	'O': '0',
	'I': '1',
	'L': '1',
	'S': '5',
	'Z': '2',
	'B': '8',
}

// Look-alike substitutions applied inside the letter run.
var digitToLetter = map[rune]rune{
	'0': 'O',
	'1': 'I',
	'2': 'Z',
	'5': 'S',
	'8': 'B',
}

type scanState int

const (
	inLetters scanState = iota
	inDigits
)

// correct partitions token into a leading letter run and a trailing digit run
// with a two-state scan, substituting look-alikes on the way. A digit seen
// while the letter run is still shorter than MinLetters is read as a letter.
func correct(token string) (string, bool) {
	var letters, digits strings.Builder
	nLetters, nDigits, read := 0, 0, 0
	state := inLetters

	for _, r := range token {
		switch state {
		case inLetters:
			switch {
			case isLetter(r):
				letters.WriteRune(r)
				nLetters++
				read++
			case isDigit(r) && nLetters < MinLetters:
				l, ok := digitToLetter[r]
				if !ok {
					return "", false
				}
				letters.WriteRune(l)
				nLetters++
			case isDigit(r):
				state = inDigits
				digits.WriteRune(r)
				nDigits++
			default:
				return "", false
			}
		case inDigits:
			switch {
			case isDigit(r):
				digits.WriteRune(r)
				nDigits++
			case isLetter(r):
				d, ok := letterToDigit[r]
				if !ok {
					return "", false
				}
				digits.WriteRune(d)
				nDigits++
			default:
				return "", false
			}
		}
	}

	// a run made only of substituted digits is a number, not a prefix
	if read == 0 {
		return "", false
	}
	if nLetters < MinLetters || nLetters > MaxLetters || nDigits < MinDigits || nDigits > MaxDigits {
		return "", false
	}
	return letters.String() + digits.String(), true
}

// asDigits maps every rune of s to a digit, failing on anything that is
// neither a digit nor a known look-alike.
func asDigits(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case isDigit(r):
			b.WriteRune(r)
		case isLetter(r):
			d, ok := letterToDigit[r]
			if !ok {
				return "", false
			}
			b.WriteRune(d)
		default:
			return "", false
		}
	}
	return b.String(), true
}
