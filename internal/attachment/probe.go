package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/noticescan/internal/model"
)

// probeBackoff is the wait before the second probe attempt; it doubles
// for every further attempt.
const probeBackoff = 200 * time.Millisecond

// ProbeStrategy is the last resort. It returns the known files tied to the
// page URL, and probes templated paths built from a partial file hash
// found in the page scripts. Both tables come from site configuration.
type ProbeStrategy struct {
	client Doer
	cfg    ProbeConfig
	hashRe *regexp.Regexp
	known  []KnownFile
	logger *slog.Logger
}

// NewProbeStrategy returns the existence-probe strategy.
func NewProbeStrategy(client Doer, cfg ProbeConfig, known []KnownFile, logger *slog.Logger) *ProbeStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ProbeStrategy{client: client, cfg: cfg, known: known, logger: logger}
	re, err := regexp.Compile(cfg.HashPattern)
	if err != nil || cfg.HashPattern == "" {
		re = regexp.MustCompile(DefaultHashPattern)
	}
	s.hashRe = re
	if s.cfg.Retries <= 0 {
		s.cfg.Retries = DefaultProbeRetries
	}
	if s.cfg.Timeout <= 0 {
		s.cfg.Timeout = DefaultProbeTimeout
	}
	if s.cfg.MinSize <= 0 {
		s.cfg.MinSize = DefaultProbeMinSize
	}
	if len(s.cfg.Extensions) == 0 {
		s.cfg.Extensions = DefaultProbeExtensions
	}
	return s
}

// Name implements Strategy.
func (s *ProbeStrategy) Name() string { return NameProbe }

// Resolve implements Strategy.
func (s *ProbeStrategy) Resolve(ctx context.Context, page *Page) ([]model.Attachment, error) {
	out := s.knownFiles(page)

	if len(s.cfg.Templates) == 0 || s.client == nil {
		return out, nil
	}
	hash := s.findHash(page)
	if hash == "" {
		return out, nil
	}
	s.logger.Debug("probing for hashed files", "hash", hash, "url", page.URL.String())

	for _, tmpl := range s.cfg.Templates {
		for _, ext := range s.cfg.Extensions {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			target := page.Abs(Expand(tmpl, map[string]string{"hash": hash, "ext": ext}))
			if target == "" {
				continue
			}
			if !s.exists(ctx, target) {
				continue
			}
			att := model.NewLinkAttachment(fmt.Sprintf("첨부파일_%s%s", hash, ext), target, NameProbe)
			out = append(out, att)
		}
	}
	return out, nil
}

// knownFiles returns configured attachments whose page match occurs in the
// page URL. Every path becomes a candidate, tried in order.
func (s *ProbeStrategy) knownFiles(page *Page) []model.Attachment {
	pageURL := page.URL.String()

	var out []model.Attachment
	for _, kf := range s.known {
		if kf.PageMatch == "" || !strings.Contains(pageURL, kf.PageMatch) {
			continue
		}
		att := model.Attachment{DisplayName: kf.Name, Size: kf.Size, Strategy: NameProbe}
		for _, p := range kf.Paths {
			if u := page.Abs(p); u != "" {
				att.Candidates = append(att.Candidates, model.Candidate{URL: u})
			}
		}
		if len(att.Candidates) > 0 {
			out = append(out, att)
		}
	}
	return out
}

// findHash returns the longest hash-like token in the page scripts; the
// first one wins on ties.
func (s *ProbeStrategy) findHash(page *Page) string {
	var best string
	page.Doc.Find("script").Each(func(_ int, el *goquery.Selection) {
		for _, m := range s.hashRe.FindAllString(el.Text(), -1) {
			if len(m) > len(best) {
				best = m
			}
		}
	})
	return best
}

// exists sends HEAD probes with retries. A hit needs status 200 and a
// response that does not look like an HTML error page: either a non-HTML
// content type or a declared length of at least MinSize.
func (s *ProbeStrategy) exists(ctx context.Context, target string) bool {
	wait := probeBackoff
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		ok, retry := s.head(ctx, target)
		if ok {
			return true
		}
		if !retry || attempt == s.cfg.Retries {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		wait *= 2
	}
	return false
}

// head performs one probe. retry reports whether a transport failure or a
// server error makes another attempt worthwhile.
func (s *ProbeStrategy) head(ctx context.Context, target string) (ok, retry bool) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false, false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("probe failed", "url", target, "error", err)
		return false, true
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 500 {
		return false, true
	}
	if resp.StatusCode != http.StatusOK {
		return false, false
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") {
		return true, false
	}
	return resp.ContentLength >= s.cfg.MinSize, false
}
