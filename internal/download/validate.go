package download

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Validation thresholds.
const (
	// HeadSize is how many leading bytes the validator inspects.
	HeadSize = 8 << 10

	// BinaryMinSize is the size above which an HTML-typed payload may
	// still be a binary file.
	BinaryMinSize = 10 << 10

	// MaxMarkupRatio is the largest share of '<' and '>' bytes that a
	// binary payload may contain.
	MaxMarkupRatio = 0.01

	// ShortPageRunes bounds the visible text of a page whose whole body is
	// searched for error tokens. Longer pages are judged by their title
	// and headings only.
	ShortPageRunes = 300
)

// Payload describes a received body for validation.
type Payload struct {
	// Head holds the first HeadSize bytes.
	Head []byte

	// Size is the total number of bytes.
	Size int64

	// AngleBrackets counts '<' and '>' bytes over the whole payload.
	AngleBrackets int64

	// ContentType is the declared Content-Type.
	ContentType string

	// Ext is the expected extension with a leading dot, or "".
	Ext string
}

var (
	sigPDF   = []byte("%PDF")
	sigOLE   = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	sigZIP   = []byte("PK\x03\x04")
	sigZIPE  = []byte("PK\x05\x06")
	sigHWP3  = []byte("HWP Document File")
	sigRAR   = []byte("Rar!\x1a\x07")
	sig7Z    = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	sigPNG   = []byte("\x89PNG\r\n\x1a\n")
	sigJPEG  = []byte{0xFF, 0xD8, 0xFF}
	sigGIF87 = []byte("GIF87a")
	sigGIF89 = []byte("GIF89a")
)

// signatures maps extensions to the magic numbers they accept.
var signatures = map[string][][]byte{
	".pdf":  {sigPDF},
	".hwp":  {sigOLE, sigHWP3},
	".hwpx": {sigZIP},
	".doc":  {sigOLE},
	".xls":  {sigOLE},
	".ppt":  {sigOLE},
	".docx": {sigZIP},
	".xlsx": {sigZIP},
	".pptx": {sigZIP},
	".zip":  {sigZIP, sigZIPE},
	".rar":  {sigRAR},
	".7z":   {sig7Z},
	".png":  {sigPNG},
	".jpg":  {sigJPEG},
	".jpeg": {sigJPEG},
	".gif":  {sigGIF87, sigGIF89},
}

// contentTypes maps extensions to declared types that identify them
// unambiguously. application/octet-stream never counts.
var contentTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".hwp":  {"application/x-hwp", "application/hwp", "application/haansofthwp", "application/vnd.hancom.hwp"},
	".hwpx": {"application/vnd.hancom.hwpx", "application/hwp+zip"},
	".doc":  {"application/msword"},
	".xls":  {"application/vnd.ms-excel"},
	".ppt":  {"application/vnd.ms-powerpoint"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml"},
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml"},
	".pptx": {"application/vnd.openxmlformats-officedocument.presentationml"},
	".zip":  {"application/zip", "application/x-zip-compressed"},
	".rar":  {"application/x-rar", "application/vnd.rar"},
	".7z":   {"application/x-7z-compressed"},
	".png":  {"image/png"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".gif":  {"image/gif"},
}

// errorTokens mark HTML error pages. They are matched against the text a
// reader sees, never against markup.
var errorTokens = []string{
	"not found", "forbidden", "access denied", "internal server error",
	"찾을 수 없", "존재하지 않", "권한이 없", "오류",
}

// errorWords are error tokens that must stand alone, so that "500명" or
// "errors.log" do not count.
var errorWords = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(?:404|403|500|error)(?:$|[^\p{L}\p{N}_])`)

// htmlPrefixes start HTML documents.
var htmlPrefixes = []string{"<!doctype html", "<html", "<head", "<body", "<script", "<meta", "<?xml"}

// Validate decides whether p is the file its extension promises.
//
// Order: empty payloads fail; a matching signature passes; an HTML error
// page fails; an HTML-typed payload that is large and nearly free of
// markup passes; a known extension passes on an unambiguous declared type
// and fails otherwise; any other HTML-shaped payload fails.
func Validate(p Payload) error {
	if p.Size == 0 {
		return ErrEmptyPayload
	}

	sigs, known := signatures[p.Ext]
	if known && hasSignature(p.Head, sigs) {
		return nil
	}

	html := looksLikeHTML(p.Head)
	if html && hasErrorToken(p.Head) {
		return ErrErrorPage
	}

	if declaresHTML(p.ContentType) && binaryShaped(p) {
		return nil
	}

	if known {
		if !html && declaredTypeMatches(p.Ext, p.ContentType) {
			return nil
		}
		return ErrSignatureMismatch
	}

	if html && p.Ext != ".html" && p.Ext != ".htm" {
		return ErrUnexpectedHTML
	}
	return nil
}

func hasSignature(head []byte, sigs [][]byte) bool {
	for _, sig := range sigs {
		if bytes.HasPrefix(head, sig) {
			return true
		}
	}
	return false
}

// looksLikeHTML reports whether head starts like a markup document.
func looksLikeHTML(head []byte) bool {
	trimmed := bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	trimmed = bytes.TrimLeft(trimmed, " \t\r\n")
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	lower := strings.ToLower(string(trimmed))
	for _, p := range htmlPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.Contains(lower, "<html")
}

// hasErrorToken reports whether the visible signal of an HTML head reads
// like an error page. The signal is the title and h1-h3 headings, plus the
// body text when the page is short.
func hasErrorToken(head []byte) bool {
	signal := errorSignal(head)
	if errorWords.MatchString(signal) {
		return true
	}
	lower := strings.ToLower(signal)
	for _, tok := range errorTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

func errorSignal(head []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(head))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()

	parts := []string{doc.Find("title").Text()}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	body := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if utf8.RuneCountInString(body) <= ShortPageRunes {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n")
}

func declaresHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// binaryShaped reports a large payload with almost no angle brackets.
func binaryShaped(p Payload) bool {
	if p.Size <= BinaryMinSize {
		return false
	}
	return float64(p.AngleBrackets)/float64(p.Size) < MaxMarkupRatio
}

func declaredTypeMatches(ext, contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, want := range contentTypes[ext] {
		if strings.Contains(ct, want) {
			return true
		}
	}
	return false
}
