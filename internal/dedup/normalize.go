package dedup

import (
	"crypto/md5" //nolint:gosec // identity hash of a normalized title
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// fold case-folds s. A cases.Caser carries state, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Normalize returns the comparison form of a title: case-folded, with
// runes outside the allow-list removed and whitespace collapsed.
// The allow-list is letters (Hangul included), digits, '_', '(', ')' and '-'.
// Normalize is idempotent.
func Normalize(title string) string {
	folded := fold(title)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '_', r == '(', r == ')', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Hash returns the MD5 hex digest of the normalized title. Only the record
// file layout is shared with records written by other crawlers; titles
// with punctuation between words may hash differently there.
func Hash(title string) string {
	sum := md5.Sum([]byte(Normalize(title))) //nolint:gosec // not a security boundary
	return hex.EncodeToString(sum[:])
}
