// Package filename recovers attachment file names from HTTP headers.
//
// Korean public sites send Content-Disposition names in a mix of RFC 5987,
// percent-encoded UTF-8, raw UTF-8, double-encoded UTF-8 and raw EUC-KR or
// CP949 bytes. Resolve tries each interpretation in a fixed order and
// sanitizes the winner for the local filesystem.
package filename

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/korean"
)

var (
	// extendedParam matches filename*=charset'lang'value.
	extendedParam = regexp.MustCompile(`(?i)filename\*\s*=\s*([^';]*)'([^']*)'([^;]+)`)

	// plainParam matches filename="value" or filename=value.
	plainParam = regexp.MustCompile(`(?i)(?:^|;)\s*filename\s*=\s*(?:"([^"]*)"|([^;]*))`)

	// percentEscape detects at least one %XX sequence.
	percentEscape = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
)

// plainDecoders are tried in order on the plain filename= value:
// UTF-8 percent-decoding, Latin-1 to UTF-8, Latin-1 to EUC-KR and
// Latin-1 to CP949.
var plainDecoders = []func(value string) (string, bool){
	decodePercentUTF8,
	decodeLatin1UTF8,
	decodeLatin1EUCKR,
	decodeLatin1CP949,
}

// Resolve returns a sanitized file name from the Content-Disposition header,
// or the sanitized fallback when no interpretation yields a usable name.
func Resolve(header http.Header, fallback string) string {
	if name, ok := FromContentDisposition(header.Get("Content-Disposition")); ok {
		return Sanitize(name)
	}
	return Sanitize(fallback)
}

// FromContentDisposition extracts the unsanitized file name from a
// Content-Disposition value.
func FromContentDisposition(cd string) (string, bool) {
	if cd == "" {
		return "", false
	}

	if m := extendedParam.FindStringSubmatch(cd); m != nil {
		if name, ok := decodeExtended(m[1], strings.TrimSpace(m[3])); ok {
			return name, true
		}
	}

	m := plainParam.FindStringSubmatch(cd)
	if m == nil {
		return "", false
	}
	value := m[1]
	if value == "" {
		value = strings.TrimSpace(m[2])
	}
	value = strings.ReplaceAll(value, "+", " ")
	if strings.TrimSpace(value) == "" {
		return "", false
	}

	for _, decode := range plainDecoders {
		if name, ok := decode(value); ok {
			return name, true
		}
	}
	return "", false
}

// decodeExtended handles the RFC 5987 form with a declared charset.
func decodeExtended(charsetName, value string) (string, bool) {
	raw, err := url.PathUnescape(value)
	if err != nil {
		return "", false
	}
	label := strings.ToLower(strings.TrimSpace(charsetName))
	if label == "" || label == "utf-8" || label == "utf8" {
		return accept(raw)
	}
	enc, _ := charset.Lookup(label)
	if enc == nil {
		return accept(raw)
	}
	decoded, err := enc.NewDecoder().String(raw)
	if err != nil {
		return "", false
	}
	return accept(decoded)
}

// decodePercentUTF8 accepts percent-encoded UTF-8 and plain ASCII names.
func decodePercentUTF8(value string) (string, bool) {
	if !percentEscape.MatchString(value) && !isASCII(value) {
		return "", false
	}
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return "", false
	}
	return accept(decoded)
}

// decodeLatin1UTF8 reads the value's Latin-1 bytes as UTF-8. A value that
// is valid UTF-8 but does not survive narrowing, such as "résumé.pdf" sent
// as raw UTF-8, is taken as is unless its narrowed bytes are EUC-KR.
func decodeLatin1UTF8(value string) (string, bool) {
	if name, ok := accept(string(rawBytes(value))); ok {
		return name, true
	}
	if percentEscape.MatchString(value) || !utf8.ValidString(value) || isStrictEUCKR(latin1Bytes(value)) {
		return "", false
	}
	return accept(value)
}

// decodeLatin1EUCKR reads the value's Latin-1 bytes as strict EUC-KR.
func decodeLatin1EUCKR(value string) (string, bool) {
	b := rawBytes(value)
	if !isStrictEUCKR(b) {
		return "", false
	}
	return decodeKorean(b)
}

// decodeLatin1CP949 reads the value's Latin-1 bytes as CP949 (UHC).
func decodeLatin1CP949(value string) (string, bool) {
	return decodeKorean(rawBytes(value))
}

func decodeKorean(b []byte) (string, bool) {
	decoded, err := korean.EUCKR.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	return accept(string(decoded))
}

// rawBytes returns the bytes behind a plain filename value, undoing
// percent-encoding first when present.
func rawBytes(value string) []byte {
	if percentEscape.MatchString(value) {
		if u, err := url.PathUnescape(value); err == nil {
			return []byte(u)
		}
	}
	return latin1Bytes(value)
}

// latin1Bytes recovers the bytes a server sent. Header values that were
// already widened from Latin-1 into UTF-8 runes are narrowed back; raw
// byte strings are returned unchanged.
func latin1Bytes(s string) []byte {
	if !utf8.ValidString(s) {
		return []byte(s)
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return []byte(s)
		}
		out = append(out, byte(r))
	}
	return out
}

// isStrictEUCKR reports whether b uses only ASCII and KS X 1001 pairs.
func isStrictEUCKR(b []byte) bool {
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c < 0x80 {
			continue
		}
		if c < 0xA1 || c == 0xFF || i+1 >= len(b) {
			return false
		}
		t := b[i+1]
		if t < 0xA1 || t == 0xFF {
			return false
		}
		i++
	}
	return true
}

// accept validates a decoded candidate.
func accept(s string) (string, bool) {
	if !utf8.ValidString(s) || strings.ContainsRune(s, utf8.RuneError) {
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return "", false
		}
	}
	return s, true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
