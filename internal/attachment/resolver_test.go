package attachment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/nao1215/noticescan/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustPage(t *testing.T, rawURL, html string) *Page {
	t.Helper()
	p, err := NewPage(rawURL, html)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	return p
}

type panicStrategy struct{}

func (panicStrategy) Name() string { return "panic" }
func (panicStrategy) Resolve(context.Context, *Page) ([]model.Attachment, error) {
	panic("boom")
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }
func (failingStrategy) Resolve(context.Context, *Page) ([]model.Attachment, error) {
	return nil, errors.New("selector exploded")
}

type fixedStrategy struct{ atts []model.Attachment }

func (f fixedStrategy) Name() string { return "fixed" }
func (f fixedStrategy) Resolve(context.Context, *Page) ([]model.Attachment, error) {
	return f.atts, nil
}

const detailHTML = `<html><body>
<div class="view_content"><p>본문 내용입니다.</p></div>
<div class="file_list">
  <ul>
    <li><a href="/files/notice.pdf">공고문.pdf (472 KB)</a></li>
    <li><a href="/files/form.hwp">신청서.hwp</a></li>
  </ul>
</div>
<p>첨부파일: 참고자료.xlsx</p>
</body></html>`

func TestNewPage(t *testing.T) {
	t.Parallel()

	if _, err := NewPage("/relative", "<p></p>"); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("expected ErrInvalidPage, got %v", err)
	}

	p := mustPage(t, "https://board.example.kr/bbs/view.do?id=1", "<p></p>")
	tests := []struct {
		ref  string
		want string
	}{
		{"/files/a.pdf", "https://board.example.kr/files/a.pdf"},
		{"down.do?id=3", "https://board.example.kr/bbs/down.do?id=3"},
		{"#", ""},
		{"javascript:void(0)", ""},
		{"mailto:a@b.kr", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := p.Abs(tt.ref); got != tt.want {
			t.Errorf("Abs(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
	if p.Origin() != "https://board.example.kr" {
		t.Errorf("unexpected origin %q", p.Origin())
	}
}

func TestResolverDedupesAcrossStrategies(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, Config{}, WithLogger(quietLogger()))
	atts := r.Resolve(context.Background(), mustPage(t, "https://board.example.kr/bbs/view.do", detailHTML))

	if len(atts) != 2 {
		t.Fatalf("expected 2 attachments, got %d: %+v", len(atts), atts)
	}
	seen := map[string]bool{}
	for _, a := range atts {
		if seen[a.Key()] {
			t.Errorf("duplicate key %q", a.Key())
		}
		seen[a.Key()] = true
		if a.Advisory {
			t.Errorf("text fallback must not run when links exist: %+v", a)
		}
	}
	if atts[0].Strategy != NameContainer {
		t.Errorf("first occurrence must win, got strategy %q", atts[0].Strategy)
	}
	if atts[0].CleanName() != "공고문.pdf" || atts[0].URL() != "https://board.example.kr/files/notice.pdf" {
		t.Errorf("unexpected first attachment %+v", atts[0])
	}
}

func TestResolverIsolatesFailures(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, Config{},
		WithLogger(quietLogger()),
		WithOverrides(map[string]Strategy{
			NameWidget:    panicStrategy{},
			NameContainer: failingStrategy{},
		}),
	)
	atts := r.Resolve(context.Background(), mustPage(t, "https://board.example.kr/bbs/view.do", detailHTML))
	if len(atts) != 2 {
		t.Fatalf("expected direct links to survive, got %+v", atts)
	}
	for _, a := range atts {
		if a.Strategy != NameDirect {
			t.Errorf("unexpected strategy %q", a.Strategy)
		}
	}
}

func TestResolverOverrides(t *testing.T) {
	t.Parallel()

	fixed := fixedStrategy{atts: []model.Attachment{
		model.NewLinkAttachment("x.pdf", "https://a.kr/x.pdf", ""),
		model.NewLinkAttachment("x.pdf", "https://a.kr/x.pdf", ""),
	}}
	r := NewResolver(nil, Config{},
		WithLogger(quietLogger()),
		WithOverrides(map[string]Strategy{
			NameTable: fixed,
			NameProbe: nil,
		}),
	)

	names := r.Names()
	if slices.Contains(names, NameProbe) {
		t.Errorf("nil override must remove the stage: %v", names)
	}
	if len(names) != 6 || names[1] != NameTable {
		t.Errorf("unexpected chain %v", names)
	}

	atts := r.Resolve(context.Background(), mustPage(t, "https://a.kr/view", "<p>empty</p>"))
	if len(atts) != 1 {
		t.Fatalf("expected deduped override result, got %+v", atts)
	}
	if atts[0].Strategy != NameTable {
		t.Errorf("override result must carry the stage name, got %q", atts[0].Strategy)
	}
}

func TestResolverTextFallback(t *testing.T) {
	t.Parallel()

	html := `<div class="content"><p>붙임 1. 2025년 지원사업 신청서.hwp</p><p>문의: 담당자</p></div>`
	page := mustPage(t, "https://a.kr/view", html)

	t.Run("advisory without template", func(t *testing.T) {
		t.Parallel()

		atts := NewResolver(nil, Config{}, WithLogger(quietLogger())).Resolve(context.Background(), page)
		if len(atts) != 1 {
			t.Fatalf("expected 1 advisory attachment, got %+v", atts)
		}
		if !atts[0].Advisory || atts[0].Downloadable() {
			t.Errorf("expected advisory, got %+v", atts[0])
		}
		if atts[0].DisplayName != "2025년 지원사업 신청서.hwp" {
			t.Errorf("unexpected name %q", atts[0].DisplayName)
		}
	})

	t.Run("downloadable with template", func(t *testing.T) {
		t.Parallel()

		cfg := Config{NameDownloadTemplate: "/common/file/download?fileName={name}"}
		atts := NewResolver(nil, cfg, WithLogger(quietLogger())).Resolve(context.Background(), page)
		if len(atts) != 1 || atts[0].Advisory {
			t.Fatalf("expected downloadable attachment, got %+v", atts)
		}
		want := "https://a.kr/common/file/download?fileName=2025%EB%85%84+%EC%A7%80%EC%9B%90%EC%82%AC%EC%97%85+%EC%8B%A0%EC%B2%AD%EC%84%9C.hwp"
		if atts[0].URL() != want {
			t.Errorf("unexpected URL %q", atts[0].URL())
		}
	})
}

func TestResolverDuplicatePairsProperty(t *testing.T) {
	t.Parallel()

	html := `<div id="attach">
<a href="/f/a.pdf">a.pdf</a><a href="/f/a.pdf">a.pdf</a>
<a href="/f/a.pdf"> a.pdf </a><a href="/f/b.pdf">a.pdf</a>
</div>`
	atts := NewResolver(nil, Config{}, WithLogger(quietLogger())).Resolve(context.Background(), mustPage(t, "https://a.kr/v", html))

	count := map[string]int{}
	for _, a := range atts {
		count[a.Key()]++
	}
	for k, n := range count {
		if n > 1 {
			t.Errorf("pair %q appears %d times", k, n)
		}
	}
	if len(atts) != 2 {
		t.Errorf("expected 2 distinct pairs, got %d", len(atts))
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tmpl string
		vars map[string]string
		want string
	}{
		{"/down.do?id={1}&sn={2}", map[string]string{"1": "FILE_01", "2": "0"}, "/down.do?id=FILE_01&sn=0"},
		{"/f/{hash}{ext}", map[string]string{"hash": "3e27", "ext": ".pdf"}, "/f/3e27.pdf"},
		{"/d?n={name}", map[string]string{"name": "가 b"}, "/d?n=%EA%B0%80+b"},
		{"/keep/{missing}", nil, "/keep/{missing}"},
	}
	for _, tt := range tests {
		if got := Expand(tt.tmpl, tt.vars); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}
