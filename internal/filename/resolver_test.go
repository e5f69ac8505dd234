package filename

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func header(cd string) http.Header {
	h := http.Header{}
	if cd != "" {
		h.Set("Content-Disposition", cd)
	}
	return h
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cd       string
		fallback string
		want     string
	}{
		{
			name: "rfc 5987 utf-8",
			cd:   `attachment; filename*=UTF-8''%ED%95%9C%EA%B8%80.pdf`,
			want: "한글.pdf",
		},
		{
			name: "rfc 5987 preferred over plain",
			cd:   `attachment; filename="fallback.pdf"; filename*=UTF-8''%ED%95%9C%EA%B8%80.pdf`,
			want: "한글.pdf",
		},
		{
			name: "rfc 5987 euc-kr charset",
			cd:   `attachment; filename*=EUC-KR''%C7%D1%B1%DB.hwp`,
			want: "한글.hwp",
		},
		{
			name: "percent-encoded utf-8 plain parameter",
			cd:   `attachment; filename="%EA%B3%B5%EA%B3%A0%EB%AC%B8.hwp"`,
			want: "공고문.hwp",
		},
		{
			name: "raw utf-8 bytes",
			cd:   "attachment; filename=\"공고문.hwp\"",
			want: "공고문.hwp",
		},
		{
			name: "raw euc-kr bytes",
			cd:   "attachment; filename=\"\xc7\xd1\xb1\xdb.hwp\"",
			want: "한글.hwp",
		},
		{
			name: "euc-kr bytes widened to latin-1 runes",
			cd:   "attachment; filename=\"ÇÑ±Û.hwp\"",
			want: "한글.hwp",
		},
		{
			name:     "raw utf-8 with latin-1 range runes",
			cd:       "attachment; filename=\"résumé.pdf\"",
			fallback: "fallback.pdf",
			want:     "résumé.pdf",
		},
		{
			name:     "raw utf-8 accented name with spaces",
			cd:       "attachment; filename=\"Café Noël.docx\"",
			fallback: "fallback.docx",
			want:     "Café Noël.docx",
		},
		{
			name: "double-encoded utf-8",
			cd:   "attachment; filename=\"í\u0095\u009cê¸\u0080.pdf\"",
			want: "한글.pdf",
		},
		{
			name: "cp949 extension bytes",
			cd:   "attachment; filename=\"\x81\x41.txt\"",
			want: "갂.txt",
		},
		{
			name: "plus means space",
			cd:   `attachment; filename="2025+사업+공고.pdf"`,
			want: "2025 사업 공고.pdf",
		},
		{
			name:     "missing header uses fallback",
			cd:       "",
			fallback: "첨부파일.pdf",
			want:     "첨부파일.pdf",
		},
		{
			name:     "inline without filename uses fallback",
			cd:       "inline",
			fallback: "a/b.pdf",
			want:     "a_b.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Resolve(header(tt.cd), tt.fallback); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.cd, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"illegal characters", `a<b>c:d"e/f\g|h?i*j.pdf`, "a_b_c_d_e_f_g_h_i_j.pdf"},
		{"whitespace collapsed", "  공고   \t 문.hwp ", "공고 문.hwp"},
		{"control characters", "a\x00b\x1fc.txt", "a_b_c.txt"},
		{"trailing dots trimmed", "name.pdf...", "name.pdf"},
		{"only dots", "...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeTruncatesKeepingExtension(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("가", 300) + ".hwp"
	got := Sanitize(long)

	if n := utf8.RuneCountInString(got); n != MaxLength {
		t.Errorf("expected %d runes, got %d", MaxLength, n)
	}
	if !strings.HasSuffix(got, ".hwp") {
		t.Errorf("extension lost: %q", got)
	}
}

func TestTruncateWithoutExtension(t *testing.T) {
	t.Parallel()

	got := Truncate(strings.Repeat("a", 10), 4)
	if got != "aaaa" {
		t.Errorf("expected aaaa, got %q", got)
	}
}
