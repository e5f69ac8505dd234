package fetch

import (
	"mime"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// detectionWindow is how much of the body the statistical detector sees.
const detectionWindow = 10 << 10

// minConfidence is the detector confidence required to trust its guess.
const minConfidence = 70

// latinLabels are declared charsets that servers send by default and that
// are almost always wrong for Korean pages.
var latinLabels = map[string]bool{
	"iso-8859-1":   true,
	"latin1":       true,
	"iso_8859-1":   true,
	"windows-1252": true,
	"us-ascii":     true,
}

// DecodeBody converts body to UTF-8 text and reports the encoding used.
//
// Order: a configured encoding wins; then a non-Latin charset from the
// Content-Type header; then the statistical detector when its confidence
// exceeds minConfidence; then BOM and meta tag sniffing. Anything still
// undecided is read as UTF-8.
func DecodeBody(body []byte, contentType, configured string) (string, string) {
	if configured != "" && !strings.EqualFold(configured, "auto") {
		if text, name, ok := decodeWith(body, configured); ok {
			return text, name
		}
	}

	if declared := declaredCharset(contentType); declared != "" && !latinLabels[strings.ToLower(declared)] {
		if text, name, ok := decodeWith(body, declared); ok {
			return text, name
		}
	}

	if label := detect(body); label != "" {
		if text, name, ok := decodeWith(body, label); ok {
			return text, name
		}
	}

	if _, name, _ := charset.DetermineEncoding(body, ""); name != "" && name != "windows-1252" {
		if text, resolved, ok := decodeWith(body, name); ok {
			return text, resolved
		}
	}

	return strings.ToValidUTF8(string(body), "�"), "utf-8"
}

// declaredCharset returns the charset parameter of a Content-Type value.
func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// detect runs chardet over the head of body and returns a label when the
// result is confident enough.
func detect(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sample := body
	if len(sample) > detectionWindow {
		sample = sample[:detectionWindow]
	}
	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || result == nil || result.Confidence <= minConfidence {
		return ""
	}
	return result.Charset
}

// decodeWith decodes body with the named encoding.
func decodeWith(body []byte, label string) (string, string, bool) {
	enc, name := charset.Lookup(label)
	if enc == nil {
		return "", "", false
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", "", false
	}
	return string(out), name, true
}
