package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/text/encoding/korean"
)

func eucKR(t *testing.T, s string) []byte {
	t.Helper()
	out, err := korean.EUCKR.NewEncoder().String(s)
	if err != nil {
		t.Fatal(err)
	}
	return []byte(out)
}

func TestHTTPFetcherGet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		if got := r.Header.Get("X-Board"); got != "notice" {
			t.Errorf("missing custom header, got %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>공지사항 목록</body></html>")
	}))
	defer srv.Close()

	client, err := NewHTTPClient(WithHeaders(map[string]string{"X-Board": "notice"}))
	if err != nil {
		t.Fatal(err)
	}
	f := NewHTTPFetcher(client)

	resp, err := f.Fetch(context.Background(), Get(srv.URL+"/list"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Text, "공지사항 목록") {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if resp.Encoding != "utf-8" {
		t.Errorf("expected utf-8, got %q", resp.Encoding)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func TestHTTPFetcherDeclaredEUCKR(t *testing.T) {
	t.Parallel()

	body := eucKR(t, "<html><body>입찰 공고</body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=EUC-KR")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	resp, err := NewHTTPFetcher(nil).Fetch(context.Background(), Get(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Text, "입찰 공고") {
		t.Errorf("EUC-KR body not decoded: %q", resp.Text)
	}
	if resp.Encoding != "euc-kr" {
		t.Errorf("expected euc-kr, got %q", resp.Encoding)
	}
}

func TestHTTPFetcherConfiguredEncoding(t *testing.T) {
	t.Parallel()

	body := eucKR(t, "<p>모집 안내</p>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	resp, err := NewHTTPFetcher(nil, WithEncoding("euc-kr")).Fetch(context.Background(), Get(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Text, "모집 안내") {
		t.Errorf("configured encoding ignored: %q", resp.Text)
	}
}

func TestHTTPFetcherPostForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		fmt.Fprintf(w, "page=%s", r.PostForm.Get("pageIndex"))
	}))
	defer srv.Close()

	resp, err := NewHTTPFetcher(nil).Fetch(context.Background(), PostForm(srv.URL, url.Values{"pageIndex": {"3"}}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "page=3" {
		t.Errorf("unexpected body %q", resp.Text)
	}
}

func TestHTTPFetcherErrors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><title>Request Rejected</title><body>The requested URL was rejected.</body></html>")
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/private/list", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "secret")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tests := []struct {
		name   string
		opts   []Option
		path   string
		kind   error
		status int
	}{
		{name: "not found", path: "/missing", kind: ErrHTTPStatus, status: http.StatusNotFound},
		{name: "block page", path: "/blocked", kind: ErrBlocked, status: http.StatusOK},
		{name: "robots disallow", opts: []Option{WithRobots(true, "noticescan")}, path: "/private/list", kind: ErrDisallowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewHTTPFetcher(nil, tt.opts...).Fetch(context.Background(), Get(srv.URL+tt.path))
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %T", err)
			}
			if fe.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, fe.StatusCode)
			}
		})
	}

	t.Run("robots ignored by default", func(t *testing.T) {
		t.Parallel()

		if _, err := NewHTTPFetcher(nil).Fetch(context.Background(), Get(srv.URL+"/private/list")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPFetcher(nil).Fetch(context.Background(), Get("http://127.0.0.1:1/"))
		if !errors.Is(err, ErrTransport) {
			t.Errorf("expected ErrTransport, got %v", err)
		}
	})

	t.Run("relative URL", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPFetcher(nil).Fetch(context.Background(), Get("/list.do"))
		if !errors.Is(err, ErrTransport) {
			t.Errorf("expected ErrTransport, got %v", err)
		}
	})
}

func TestHTTPFetcherWarmup(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/main", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/"})
		fmt.Fprint(w, "welcome")
	})
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("JSESSIONID")
		if err != nil || c.Value != "abc" {
			http.Error(w, "no session", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "list")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Run("without warm-up", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPFetcher(nil).Fetch(context.Background(), Get(srv.URL+"/list"))
		if !errors.Is(err, ErrHTTPStatus) {
			t.Errorf("expected ErrHTTPStatus, got %v", err)
		}
	})

	t.Run("with warm-up", func(t *testing.T) {
		t.Parallel()

		f := NewHTTPFetcher(nil, WithWarmupURL(srv.URL+"/main"))
		resp, err := f.Fetch(context.Background(), Get(srv.URL+"/list"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Text != "list" {
			t.Errorf("unexpected body %q", resp.Text)
		}
	})
}

func TestStaticCookie(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Header.Get("Cookie"))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(WithCookie("lang=ko"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewHTTPFetcher(client).Fetch(context.Background(), Get(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "lang=ko" {
		t.Errorf("unexpected cookie header %q", resp.Text)
	}
}

func TestNewHTTPClientProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		proxy   string
		wantErr bool
	}{
		{"http://127.0.0.1:8080", false},
		{"socks5://127.0.0.1:1080", false},
		{"ftp://127.0.0.1:21", true},
	}
	for _, tt := range tests {
		_, err := NewHTTPClient(WithProxy(tt.proxy))
		if (err != nil) != tt.wantErr {
			t.Errorf("proxy %q: err=%v, wantErr=%v", tt.proxy, err, tt.wantErr)
		}
	}
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	t.Run("latin-1 header ignored for utf-8 body", func(t *testing.T) {
		t.Parallel()

		in := "<html><body>" + strings.Repeat("채용 공고 안내 말씀 드립니다. ", 20) + "</body></html>"
		text, _ := DecodeBody([]byte(in), "text/html; charset=ISO-8859-1", "")
		if text != in {
			t.Errorf("utf-8 body was mangled")
		}
	})

	t.Run("configured wins", func(t *testing.T) {
		t.Parallel()

		text, name := DecodeBody(eucKR(t, "공지"), "text/html; charset=utf-8", "euc-kr")
		if text != "공지" || name != "euc-kr" {
			t.Errorf("got %q %q", text, name)
		}
	})

	t.Run("unknown configured label falls through", func(t *testing.T) {
		t.Parallel()

		text, _ := DecodeBody([]byte("plain"), "", "no-such-charset")
		if text != "plain" {
			t.Errorf("got %q", text)
		}
	})
}

func TestMatchBlockSignature(t *testing.T) {
	t.Parallel()

	if got := matchBlockSignature("정상 페이지", DefaultBlockSignatures); got != "" {
		t.Errorf("false positive %q", got)
	}
	if got := matchBlockSignature("비정상적인 접근이 감지되었습니다", DefaultBlockSignatures); got == "" {
		t.Error("expected match")
	}
	if got := matchBlockSignature("Request Rejected", nil); got != "" {
		t.Error("empty signature list must disable the check")
	}
	long := strings.Repeat("x", blockCheckLimit+1) + "Request Rejected"
	if got := matchBlockSignature(long, DefaultBlockSignatures); got != "" {
		t.Error("large pages are not checked")
	}
}

func TestBrowserFetcherRejectsPost(t *testing.T) {
	t.Parallel()

	b := NewBrowserFetcher()
	defer b.Close()

	_, err := b.Fetch(context.Background(), PostForm("http://example.com/list", url.Values{"page": {"1"}}))
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("expected ErrUnsupportedMethod, got %v", err)
	}
}
