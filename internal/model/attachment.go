package model

import (
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// sizeAnnotation matches trailing size hints that boards append to file
// names, e.g. "report.pdf (472 KB)" or "form.hwp [1.2MB]".
var sizeAnnotation = regexp.MustCompile(`(?i)\s*[\(\[]\s*\d+(?:[.,]\d+)?\s*(?:bytes?|b|kb|mb|gb|kib|mib)\s*[\)\]]\s*$`)

// StripSizeAnnotation removes a trailing size hint from a display name.
func StripSizeAnnotation(name string) string {
	return strings.TrimSpace(sizeAnnotation.ReplaceAllString(strings.TrimSpace(name), ""))
}

// Candidate is one way to request an attachment's bytes.
type Candidate struct {
	// Method is GET when empty.
	Method string `json:"method,omitempty"`

	// URL is the absolute request URL.
	URL string `json:"url"`

	// Form holds POST form parameters for API-style downloads.
	Form url.Values `json:"form,omitempty"`
}

// HTTPMethod returns the request method, defaulting to GET.
func (c Candidate) HTTPMethod() string {
	if c.Method == "" {
		if len(c.Form) > 0 {
			return http.MethodPost
		}
		return http.MethodGet
	}
	return strings.ToUpper(c.Method)
}

// Attachment is a candidate downloadable file of one announcement.
type Attachment struct {
	// DisplayName is the name as shown on the page, possibly with a size hint.
	DisplayName string `json:"display_name"`

	// Candidates are tried in order until one yields a valid payload.
	Candidates []Candidate `json:"candidates,omitempty"`

	// Size is the size text shown on the page, if any.
	Size string `json:"size,omitempty"`

	// Strategy names the resolver strategy that produced the attachment.
	Strategy string `json:"strategy,omitempty"`

	// Advisory marks attachments that are nameable but not linkable.
	Advisory bool `json:"advisory,omitempty"`
}

// NewLinkAttachment returns an attachment with a single GET candidate.
func NewLinkAttachment(name, rawURL, strategy string) Attachment {
	return Attachment{
		DisplayName: strings.TrimSpace(name),
		Candidates:  []Candidate{{URL: rawURL}},
		Strategy:    strategy,
	}
}

// CleanName returns the display name without a size annotation.
func (a Attachment) CleanName() string {
	return StripSizeAnnotation(a.DisplayName)
}

// ExpectedExt returns the lower-case extension of the display name
// including the dot, or "" when the name has none.
func (a Attachment) ExpectedExt() string {
	name := a.CleanName()
	if name == "" && len(a.Candidates) > 0 {
		if u, err := url.Parse(a.Candidates[0].URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	ext := strings.ToLower(path.Ext(name))
	if len(ext) < 2 || len(ext) > 6 || strings.ContainsAny(ext, " =&?") {
		return ""
	}
	return ext
}

// URL returns the first candidate URL or "".
func (a Attachment) URL() string {
	if len(a.Candidates) == 0 {
		return ""
	}
	return a.Candidates[0].URL
}

// Downloadable reports whether at least one candidate exists.
func (a Attachment) Downloadable() bool {
	return len(a.Candidates) > 0 && a.Candidates[0].URL != ""
}

// Key returns the identity of the attachment within one announcement:
// the normalized display name and the first resolved URL.
func (a Attachment) Key() string {
	name := strings.ToLower(strings.Join(strings.Fields(a.CleanName()), " "))
	return name + "\x00" + a.URL()
}

// DedupeAttachments keeps the first attachment for every Key.
func DedupeAttachments(in []Attachment) []Attachment {
	seen := make(map[string]struct{}, len(in))
	out := make([]Attachment, 0, len(in))
	for _, a := range in {
		k := a.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}
