// Package download fetches attachment payloads, validates them against
// their expected file type and stores them atomically: bytes stream into a
// hidden temp file that is renamed into place only after validation.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/nao1215/noticescan/internal/filename"
	"github.com/nao1215/noticescan/internal/model"
)

// Defaults.
const (
	// DefaultMaxSize caps a single attachment.
	DefaultMaxSize = 512 << 20

	// chunkSize is the copy buffer size.
	chunkSize = 32 << 10

	// fallbackName is used when neither headers nor the page name a file.
	fallbackName = "attachment"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result describes a stored attachment.
type Result struct {
	// Path is the final file path.
	Path string

	// Name is the file name within the destination directory.
	Name string

	// Size is the number of bytes written.
	Size int64

	// URL is the candidate that succeeded.
	URL string

	// ContentType is the declared Content-Type.
	ContentType string

	// Attempts is the number of candidates tried.
	Attempts int
}

// Downloader stores attachments.
type Downloader struct {
	client  Doer
	fs      afero.Fs
	logger  *slog.Logger
	maxSize int64
	referer string
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithFs sets the filesystem. Tests use afero.NewMemMapFs.
func WithFs(fs afero.Fs) Option {
	return func(d *Downloader) {
		if fs != nil {
			d.fs = fs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxSize caps the bytes accepted per attachment.
func WithMaxSize(n int64) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.maxSize = n
		}
	}
}

// WithReferer sets the Referer sent with every request.
func WithReferer(referer string) Option {
	return func(d *Downloader) {
		d.referer = referer
	}
}

// New returns a Downloader using client, which should share the page
// fetcher's cookie jar.
func New(client Doer, opts ...Option) *Downloader {
	d := &Downloader{
		client:  client,
		fs:      afero.NewOsFs(),
		logger:  slog.Default(),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ForPage returns a copy that sends referer, usually the detail page URL.
func (d *Downloader) ForPage(referer string) *Downloader {
	cp := *d
	cp.referer = referer
	return &cp
}

// Download tries the attachment's candidates in order and stores the first
// valid payload in destDir. When every candidate fails the error is an
// *Error listing each failure.
func (d *Downloader) Download(ctx context.Context, att model.Attachment, destDir string) (*Result, error) {
	if !att.Downloadable() {
		return nil, &Error{Name: att.CleanName()}
	}
	if err := d.fs.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	failures := make([]CandidateError, 0, len(att.Candidates))
	for i, cand := range att.Candidates {
		if err := ctx.Err(); err != nil {
			failures = append(failures, CandidateError{URL: cand.URL, Err: err})
			break
		}
		res, err := d.fetch(ctx, att, cand, destDir)
		if err == nil {
			res.Attempts = i + 1
			d.logger.Info("attachment saved",
				"name", res.Name,
				"bytes", res.Size,
				"url", res.URL,
				"attempts", res.Attempts,
			)
			return res, nil
		}
		d.logger.Debug("download candidate rejected", "url", cand.URL, "error", err)
		failures = append(failures, CandidateError{URL: cand.URL, Err: err})
	}
	return nil, &Error{Name: att.CleanName(), Failures: failures}
}

// fetch streams one candidate into a temp file, validates it and renames
// it into place. The temp file is removed on every failure path.
func (d *Downloader) fetch(ctx context.Context, att model.Attachment, cand model.Candidate, destDir string) (*Result, error) {
	req, err := d.newRequest(ctx, cand)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	tmp := filepath.Join(destDir, "."+uuid.NewString()+".part")
	f, err := d.fs.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	keep := false
	defer func() {
		if !keep {
			_ = d.fs.Remove(tmp)
		}
	}()

	sniff := &sniffer{}
	n, copyErr := io.CopyBuffer(io.MultiWriter(f, sniff), io.LimitReader(resp.Body, d.maxSize+1), make([]byte, chunkSize))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		return nil, fmt.Errorf("%w after %d bytes: %w", ErrTruncated, n, copyErr)
	case n > d.maxSize:
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.maxSize)
	case resp.ContentLength > 0 && n < resp.ContentLength:
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, n, resp.ContentLength)
	case closeErr != nil:
		return nil, fmt.Errorf("failed to write temp file: %w", closeErr)
	}

	name := d.resolveName(resp.Header, att, cand)
	payload := Payload{
		Head:          sniff.head,
		Size:          n,
		AngleBrackets: sniff.brackets,
		ContentType:   resp.Header.Get("Content-Type"),
		Ext:           expectedExt(att, name),
	}
	if err := Validate(payload); err != nil {
		return nil, err
	}

	final, err := uniquePath(d.fs, destDir, name)
	if err != nil {
		return nil, err
	}
	if err := d.fs.Rename(tmp, final); err != nil {
		return nil, fmt.Errorf("failed to move %s into place: %w", filepath.Base(final), err)
	}
	keep = true

	return &Result{
		Path:        final,
		Name:        filepath.Base(final),
		Size:        n,
		URL:         cand.URL,
		ContentType: payload.ContentType,
	}, nil
}

func (d *Downloader) newRequest(ctx context.Context, cand model.Candidate) (*http.Request, error) {
	var body io.Reader
	if len(cand.Form) > 0 {
		body = strings.NewReader(cand.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, cand.HTTPMethod(), cand.URL, body)
	if err != nil {
		return nil, fmt.Errorf("invalid candidate: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "*/*")
	if d.referer != "" {
		req.Header.Set("Referer", d.referer)
	}
	return req, nil
}

// resolveName prefers the Content-Disposition name, then the display
// name, then the URL path. A missing extension is taken from the
// attachment.
func (d *Downloader) resolveName(header http.Header, att model.Attachment, cand model.Candidate) string {
	fallback := att.CleanName()
	if fallback == "" {
		fallback = nameFromURL(cand.URL)
	}
	name := filename.Resolve(header, fallback)
	if name == "" {
		name = fallbackName
	}
	if path.Ext(name) == "" {
		if ext := att.ExpectedExt(); ext != "" {
			name += ext
		}
	}
	return name
}

// expectedExt prefers the extension the page promised; the stored name is
// used when the page gave none.
func expectedExt(att model.Attachment, name string) string {
	if ext := att.ExpectedExt(); ext != "" {
		return ext
	}
	return strings.ToLower(path.Ext(name))
}

func nameFromURL(raw string) string {
	i := strings.IndexAny(raw, "?#")
	if i >= 0 {
		raw = raw[:i]
	}
	base := path.Base(raw)
	if base == "." || base == "/" || !strings.Contains(base, ".") {
		return ""
	}
	return base
}

// uniquePath returns dir/name, or dir/"name (n).ext" when taken.
func uniquePath(fs afero.Fs, dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := fs.Stat(candidate); errors.Is(err, os.ErrNotExist) {
		return candidate, nil
	} else if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 2; i < 10_000; i++ {
		candidate = filepath.Join(dir, base+" ("+strconv.Itoa(i)+")"+ext)
		if _, err := fs.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

// sniffer keeps the head of a stream and counts angle brackets.
type sniffer struct {
	head     []byte
	brackets int64
}

// Write implements io.Writer.
func (s *sniffer) Write(p []byte) (int, error) {
	if room := HeadSize - len(s.head); room > 0 {
		s.head = append(s.head, p[:min(room, len(p))]...)
	}
	for _, b := range p {
		if b == '<' || b == '>' {
			s.brackets++
		}
	}
	return len(p), nil
}
