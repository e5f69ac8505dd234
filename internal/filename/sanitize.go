package filename

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLength is the maximum file name length in runes after sanitizing.
const MaxLength = 200

// illegalChars are replaced with '_' because at least one common
// filesystem rejects them.
const illegalChars = `<>:"/\|?*`

// Sanitize makes name safe to use as a single path element. It replaces
// illegal and control characters with '_', collapses whitespace and
// truncates to MaxLength runes while keeping the extension.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			b.WriteRune('_')
		case strings.ContainsRune(illegalChars, r):
			b.WriteRune('_')
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		return ""
	}
	return Truncate(cleaned, MaxLength)
}

// Truncate shortens name to at most limit runes, preserving its extension
// when the extension itself fits.
func Truncate(name string, limit int) string {
	if utf8.RuneCountInString(name) <= limit {
		return name
	}
	ext := path.Ext(name)
	extLen := utf8.RuneCountInString(ext)
	if ext == "" || extLen >= limit {
		return strings.TrimSpace(string([]rune(name)[:limit]))
	}
	base := []rune(strings.TrimSuffix(name, ext))
	keep := limit - extLen
	if keep > len(base) {
		keep = len(base)
	}
	return strings.TrimSpace(string(base[:keep])) + ext
}
