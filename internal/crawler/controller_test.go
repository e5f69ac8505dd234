package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/afero"

	"github.com/nao1215/noticescan/internal/attachment"
	"github.com/nao1215/noticescan/internal/dedup"
	"github.com/nao1215/noticescan/internal/download"
	"github.com/nao1215/noticescan/internal/fetch"
	"github.com/nao1215/noticescan/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// board serves list pages, detail pages and PDF attachments.
type board struct {
	mu       sync.Mutex
	pages    map[int][]int
	broken   map[int]bool
	listHits atomic.Int32
	onDetail func(id int)
}

func (b *board) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		b.listHits.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		b.mu.Lock()
		ids := b.pages[page]
		b.mu.Unlock()

		var sb strings.Builder
		sb.WriteString(`<html><body><ul class="board">`)
		for _, id := range ids {
			fmt.Fprintf(&sb, `<li><a href="/view?id=%d">공고 %d</a><span class="date">2025-01-%02d</span></li>`, id, id, id)
		}
		sb.WriteString(`</ul></body></html>`)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, sb.String())
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.URL.Query().Get("id"))
		if b.onDetail != nil {
			b.onDetail(id)
		}
		if b.broken[id] {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body>
<div class="content"><p>공고 %d 본문입니다.</p></div>
<div class="file_list"><a href="/files/%d.pdf">공고%d.pdf</a></div>
</body></html>`, id, id, id)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4\n"+strings.Repeat("0", 2048))
	})
	return mux
}

// listAdapter is a minimal adapter over board's markup.
type listAdapter struct {
	base string
}

func (a listAdapter) ListURL(page int) string {
	return a.base + "/list?page=" + strconv.Itoa(page)
}

func (a listAdapter) ParseList(resp *fetch.Response) ([]model.Announcement, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text))
	if err != nil {
		return nil, err
	}
	var out []model.Announcement
	doc.Find("ul.board li").Each(func(i int, s *goquery.Selection) {
		link := s.Find("a")
		href, _ := link.Attr("href")
		ann := model.NewAnnouncement(link.Text(), model.Locator{URL: a.base + href}, i+1)
		ann.Metadata[model.MetaDate] = s.Find(".date").Text()
		out = append(out, ann)
	})
	return out, nil
}

func (a listAdapter) ParseDetail(resp *fetch.Response, _ model.Announcement) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text))
	if err != nil {
		return nil, err
	}
	return &Detail{
		Content:  strings.TrimSpace(doc.Find(".content").Text()),
		Metadata: map[string]string{model.MetaWriter: "담당부서"},
	}, nil
}

type harness struct {
	srv     *httptest.Server
	fs      afero.Fs
	store   *dedup.FileStore
	tracker *dedup.Tracker
	ctl     *Controller
}

func newHarness(t *testing.T, b *board, opts ...Option) *harness {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	store := dedup.NewFileStore(fs, "/state")
	tracker := dedup.NewTracker("board", store, dedup.WithLogger(quietLogger()))
	fetcher := fetch.NewHTTPFetcher(srv.Client(), fetch.WithLogger(quietLogger()))

	base := []Option{
		WithLogger(quietLogger()),
		WithDelays(0, 0),
		WithResolver(attachment.NewResolver(srv.Client(), attachment.Config{}, attachment.WithLogger(quietLogger()))),
		WithDownloader(download.New(srv.Client(), download.WithFs(fs), download.WithLogger(quietLogger()))),
		WithArtifactWriter(NewArtifactWriter(fs, "/out")),
	}
	ctl := New("board", listAdapter{base: srv.URL}, fetcher, tracker, append(base, opts...)...)
	return &harness{srv: srv, fs: fs, store: store, tracker: tracker, ctl: ctl}
}

func (h *harness) record(t *testing.T) model.DuplicateRecord {
	t.Helper()
	rec, err := h.store.Load(context.Background(), "board")
	if err != nil {
		t.Fatalf("record not flushed: %v", err)
	}
	return rec
}

func TestControllerTwoPageCrawl(t *testing.T) {
	t.Parallel()

	// Page 2 repeats three titles of page 1 after two new ones.
	b := &board{pages: map[int][]int{
		1: {1, 2, 3, 4, 5},
		2: {6, 7, 1, 2, 3},
		3: {8, 9, 10},
	}}
	h := newHarness(t, b)

	summary := h.ctl.Run(context.Background())

	if summary.Status != model.StatusCompleted || summary.StopReason != model.StopDuplicates {
		t.Fatalf("unexpected end state %s / %q", summary.Status, summary.StopReason)
	}
	if summary.Processed != 7 || summary.Failed != 0 || summary.Pages != 2 {
		t.Errorf("unexpected counts %+v", summary)
	}
	if summary.Attachments != 7 || summary.AttachmentFailures != 0 {
		t.Errorf("expected 7 saved attachments, got %d (failures %d)", summary.Attachments, summary.AttachmentFailures)
	}
	if got := b.listHits.Load(); got != 2 {
		t.Errorf("page 3 must not be fetched, list hits %d", got)
	}
	if rec := h.record(t); rec.Count != 7 || len(rec.Hashes) != 7 {
		t.Errorf("expected 7 flushed hashes, got %+v", rec)
	}
	if summary.KnownTitles != 7 {
		t.Errorf("KnownTitles = %d, want 7", summary.KnownTitles)
	}

	content, err := afero.ReadFile(h.fs, filepath.Join("/out", "001_공고 1", ContentFile))
	if err != nil {
		t.Fatalf("content.md missing: %v", err)
	}
	for _, want := range []string{"# 공고 1", "2025-01-01", "담당부서", "공고 1 본문입니다.", "/view?id=1"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("content.md lacks %q:\n%s", want, content)
		}
	}
	if ok, _ := afero.Exists(h.fs, filepath.Join("/out", "007_공고 7", AttachmentDir, "공고7.pdf")); !ok {
		t.Error("attachment of the seventh announcement missing")
	}
}

func TestControllerStops(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		pages     map[int][]int
		opts      []Option
		status    model.RunStatus
		reason    string
		processed int
	}{
		{
			name:   "empty first page",
			pages:  map[int][]int{},
			status: model.StatusFailed,
			reason: model.StopFirstPageFail,
		},
		{
			name:      "empty later page",
			pages:     map[int][]int{1: {1, 2}},
			status:    model.StatusCompleted,
			reason:    model.StopEmptyPage,
			processed: 2,
		},
		{
			name:      "page limit",
			pages:     map[int][]int{1: {1}, 2: {2}},
			opts:      []Option{WithMaxPages(1)},
			status:    model.StatusCompleted,
			reason:    model.StopPageLimit,
			processed: 1,
		},
		{
			name:      "later page without new titles",
			pages:     map[int][]int{1: {1, 2}, 2: {1, 2}, 3: {3}},
			status:    model.StatusCompleted,
			reason:    model.StopNoNewItems,
			processed: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, &board{pages: tt.pages}, tt.opts...)
			summary := h.ctl.Run(context.Background())
			if summary.Status != tt.status || summary.StopReason != tt.reason {
				t.Errorf("got %s / %q, want %s / %q", summary.Status, summary.StopReason, tt.status, tt.reason)
			}
			if summary.Processed != tt.processed {
				t.Errorf("processed %d, want %d", summary.Processed, tt.processed)
			}
			if rec := h.record(t); rec.Count != tt.processed {
				t.Errorf("flushed %d hashes, want %d", rec.Count, tt.processed)
			}
		})
	}
}

func TestControllerIsolatesItemFailures(t *testing.T) {
	t.Parallel()

	b := &board{
		pages:  map[int][]int{1: {1, 2, 3}},
		broken: map[int]bool{2: true},
	}
	h := newHarness(t, b)
	summary := h.ctl.Run(context.Background())

	if summary.Processed != 2 || summary.Failed != 1 {
		t.Fatalf("expected 2 processed and 1 failed, got %+v", summary)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "공고 2") {
		t.Errorf("expected the failure to be recorded, got %v", summary.Errors)
	}
	if h.tracker.IsKnown("공고 2") {
		t.Error("a failed announcement must not be committed")
	}
	if !h.tracker.IsKnown("공고 3") {
		t.Error("processing must continue after a failure")
	}
}

// panickingAdapter fails with a runtime panic on one announcement.
type panickingAdapter struct {
	listAdapter
	title string
}

func (a panickingAdapter) ParseDetail(resp *fetch.Response, ann model.Announcement) (*Detail, error) {
	if ann.Title == a.title {
		var fields map[string]string
		fields["id"] = ann.Title
	}
	return a.listAdapter.ParseDetail(resp, ann)
}

func TestControllerRecoversItemPanic(t *testing.T) {
	t.Parallel()

	b := &board{pages: map[int][]int{1: {1, 2, 3}}}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	store := dedup.NewFileStore(fs, "/state")
	tracker := dedup.NewTracker("board", store, dedup.WithLogger(quietLogger()))
	ctl := New("board",
		panickingAdapter{listAdapter: listAdapter{base: srv.URL}, title: "공고 2"},
		fetch.NewHTTPFetcher(srv.Client(), fetch.WithLogger(quietLogger())),
		tracker,
		WithLogger(quietLogger()),
		WithDelays(0, 0),
		WithResolver(attachment.NewResolver(srv.Client(), attachment.Config{}, attachment.WithLogger(quietLogger()))),
		WithDownloader(download.New(srv.Client(), download.WithFs(fs), download.WithLogger(quietLogger()))),
		WithArtifactWriter(NewArtifactWriter(fs, "/out")),
		WithMaxPages(1),
	)

	summary := ctl.Run(context.Background())
	if summary.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", summary.Status, summary.StopReason)
	}
	if summary.Processed != 2 || summary.Failed != 1 {
		t.Fatalf("expected 2 processed and 1 failed, got %+v", summary)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "공고 2") {
		t.Errorf("expected the panic to be recorded for 공고 2, got %v", summary.Errors)
	}

	rec, err := store.Load(context.Background(), "board")
	if err != nil {
		t.Fatalf("record not flushed: %v", err)
	}
	if rec.Count != 2 {
		t.Errorf("expected 2 flushed hashes, got %d", rec.Count)
	}
	if tracker.IsKnown("공고 2") {
		t.Error("the panicking announcement must not be committed")
	}
}

func TestControllerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &board{pages: map[int][]int{1: {1, 2, 3}}}
	b.onDetail = func(id int) {
		if id == 1 {
			cancel()
		}
	}
	h := newHarness(t, b)
	summary := h.ctl.Run(ctx)

	if summary.Status != model.StatusInterrupted {
		t.Fatalf("expected interrupted, got %s", summary.Status)
	}
	if summary.Processed+summary.Failed != 1 {
		t.Errorf("only the first announcement may start, got %+v", summary)
	}
	h.record(t)
}

type overridingAdapter struct {
	listAdapter
}

func (overridingAdapter) Strategies() map[string]attachment.Strategy {
	return map[string]attachment.Strategy{
		attachment.NameContainer: nil,
		attachment.NameDirect:    nil,
	}
}

func TestControllerAppliesStrategyOverrides(t *testing.T) {
	t.Parallel()

	resolver := attachment.NewResolver(nil, attachment.Config{}, attachment.WithLogger(quietLogger()))
	New("x", overridingAdapter{}, fetch.NewHTTPFetcher(nil), dedup.NewTracker("x", dedup.NewFileStore(afero.NewMemMapFs(), "/")),
		WithResolver(resolver))

	for _, n := range resolver.Names() {
		if n == attachment.NameContainer || n == attachment.NameDirect {
			t.Errorf("stage %s must be removed", n)
		}
	}
}

func TestDetailRequest(t *testing.T) {
	t.Parallel()

	withURL := model.NewAnnouncement("a", model.Locator{URL: "https://a.kr/view?id=1"}, 1)
	req, err := detailRequest(listAdapter{}, withURL)
	if err != nil || req.URL != "https://a.kr/view?id=1" {
		t.Errorf("unexpected request %+v, %v", req, err)
	}

	withCall := model.NewAnnouncement("b", model.Locator{Call: &model.ScriptCall{Func: "fn_view", Args: []string{"7"}}}, 2)
	if _, err := detailRequest(listAdapter{}, withCall); !errors.Is(err, ErrNoDetailLocator) {
		t.Errorf("expected ErrNoDetailLocator, got %v", err)
	}
}
