package attachment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nao1215/noticescan/internal/model"
)

// maxListBody caps the file list API response.
const maxListBody = 2 << 20

// Field aliases in file list records, most specific first.
var (
	widgetNameFields = []string{"fileOriginName", "orignlFileNm", "originalFileName", "fileName", "fileNm", "name"}
	widgetIDFields   = []string{"fileId", "fileSn", "fileSeq", "id"}
	widgetSizeFields = []string{"fileSize", "fileMg", "size"}
	widgetListKeys   = []string{"fileList", "list", "data", "result", "files"}
)

// WidgetStrategy reads files from an upload widget: it finds the widget's
// file group id in the page, posts it to the list API and builds download
// candidates for every record returned.
type WidgetStrategy struct {
	client Doer
	cfg    WidgetConfig
	idRe   *regexp.Regexp
	logger *slog.Logger
}

// NewWidgetStrategy returns the upload-widget strategy. It is inert when
// cfg is incomplete.
func NewWidgetStrategy(client Doer, cfg WidgetConfig, logger *slog.Logger) *WidgetStrategy {
	s := &WidgetStrategy{client: client, cfg: cfg, logger: logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if cfg.IDPattern != "" {
		if re, err := regexp.Compile(cfg.IDPattern); err == nil {
			s.idRe = re
		} else {
			s.logger.Warn("invalid widget id pattern", "pattern", cfg.IDPattern, "error", err)
		}
	}
	return s
}

// Name implements Strategy.
func (s *WidgetStrategy) Name() string { return NameWidget }

// Resolve implements Strategy.
func (s *WidgetStrategy) Resolve(ctx context.Context, page *Page) ([]model.Attachment, error) {
	if !s.cfg.Enabled() || s.idRe == nil || s.client == nil {
		return nil, nil
	}
	if !strings.Contains(page.HTML, s.cfg.Marker) {
		return nil, nil
	}

	var (
		out  []model.Attachment
		errs []error
		seen = make(map[string]bool)
	)
	for _, m := range s.idRe.FindAllStringSubmatch(page.HTML, -1) {
		if len(m) < 2 || m[1] == "" || seen[m[1]] {
			continue
		}
		seen[m[1]] = true

		records, err := s.list(ctx, page, m[1])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s.toAttachments(page, m[1], records)...)
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errs[0]
	}
	return out, nil
}

// list calls the file list API for one group id.
func (s *WidgetStrategy) list(ctx context.Context, page *Page, groupID string) ([]map[string]any, error) {
	endpoint := page.Abs(Expand(s.cfg.ListURL, map[string]string{"id": groupID}))
	if endpoint == "" {
		return nil, fmt.Errorf("invalid list URL %q", s.cfg.ListURL)
	}

	form := url.Values{s.cfg.ListParam: {groupID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", page.URL.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("file list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file list returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read file list: %w", err)
	}
	return decodeRecords(body)
}

// decodeRecords accepts a bare array or an object wrapping one.
func decodeRecords(body []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("file list is not JSON: %w", err)
	}
	for _, key := range widgetListKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
	}
	return nil, errors.New("file list has no record array")
}

func (s *WidgetStrategy) toAttachments(page *Page, groupID string, records []map[string]any) []model.Attachment {
	out := make([]model.Attachment, 0, len(records))
	for _, rec := range records {
		name := firstField(rec, widgetNameFields)
		fileID := firstField(rec, widgetIDFields)
		if name == "" || fileID == "" {
			continue
		}
		vars := map[string]string{"id": groupID, "file_id": fileID, "name": name}

		att := model.Attachment{
			DisplayName: name,
			Size:        firstField(rec, widgetSizeFields),
			Strategy:    NameWidget,
		}
		for _, tmpl := range s.cfg.DownloadTemplates {
			if u := page.Abs(Expand(tmpl, vars)); u != "" {
				att.Candidates = append(att.Candidates, model.Candidate{URL: u})
			}
		}
		if len(att.Candidates) > 0 {
			out = append(out, att)
		}
	}
	return out
}

// firstField returns the first non-empty field among keys as a string.
func firstField(rec map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
