package attachment

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/noticescan/internal/model"
)

// CallParser turns one named JavaScript download call into an attachment.
type CallParser struct {
	// Func is the function name.
	Func string

	// Shape documents the expected call, e.g. "fn_egov_downloadFile(atchFileId, fileSn)".
	Shape string

	// Build returns the attachment for a call. label is the text of the
	// element carrying the call, or "" for calls found in script blocks.
	Build func(page *Page, call model.ScriptCall, label string) (model.Attachment, bool)
}

// DefaultCallParsers covers the eGovFrame download call and the generic
// download helpers that take a file path argument.
func DefaultCallParsers() []CallParser {
	return []CallParser{
		TemplateParser(CallPattern{
			Func:     "fn_egov_downloadFile",
			Template: "/cmm/fms/FileDown.do?atchFileId={1}&fileSn={2}",
		}, "fn_egov_downloadFile(atchFileId, fileSn)"),
		pathArgParser("fnDownload"),
		pathArgParser("fileDownload"),
		pathArgParser("download"),
	}
}

// TemplateParser builds a parser that fills p.Template and p.Form with the
// call arguments.
func TemplateParser(p CallPattern, shape string) CallParser {
	return CallParser{
		Func:  p.Func,
		Shape: shape,
		Build: func(page *Page, call model.ScriptCall, label string) (model.Attachment, bool) {
			vars := positional(call.Args)
			target := page.Abs(Expand(p.Template, vars))
			if target == "" {
				return model.Attachment{}, false
			}
			cand := model.Candidate{Method: strings.ToUpper(p.Method), URL: target}
			if len(p.Form) > 0 {
				cand.Form = url.Values{}
				for k, v := range p.Form {
					cand.Form.Set(k, expandRaw(v, vars))
				}
			}
			name := label
			if p.NameArg > 0 && p.NameArg <= len(call.Args) {
				name = call.Args[p.NameArg-1]
			}
			return model.Attachment{
				DisplayName: name,
				Candidates:  []model.Candidate{cand},
				Strategy:    NameScript,
			}, true
		},
	}
}

// pathArgParser handles calls such as download('/upload/a.pdf', 'a.pdf'):
// the first argument that looks like a path or URL is the target and an
// argument with a file extension names it.
func pathArgParser(fn string) CallParser {
	return CallParser{
		Func:  fn,
		Shape: fn + "(path[, name])",
		Build: func(page *Page, call model.ScriptCall, label string) (model.Attachment, bool) {
			var target, name string
			for _, a := range call.Args {
				switch {
				case target == "" && looksLikePath(a):
					target = page.Abs(a)
				case name == "" && fileNameArg.MatchString(a):
					name = a
				}
			}
			if target == "" {
				return model.Attachment{}, false
			}
			if name == "" {
				name = label
			}
			return model.NewLinkAttachment(name, target, NameScript), true
		},
	}
}

var fileNameArg = regexp.MustCompile(`(?i)^[^/\\]+\.[a-z0-9]{2,5}$`)

func looksLikePath(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ScriptStrategy scans onclick handlers, javascript: links and inline
// scripts for named download calls.
type ScriptStrategy struct {
	parsers []CallParser
}

// NewScriptStrategy returns the script-call strategy with the default
// parsers plus one per configured pattern. A configured pattern replaces a
// default parser with the same function name.
func NewScriptStrategy(patterns []CallPattern) *ScriptStrategy {
	parsers := DefaultCallParsers()
	for _, p := range patterns {
		if p.Func == "" || p.Template == "" {
			continue
		}
		parser := TemplateParser(p, p.Func+"(...)")
		replaced := false
		for i := range parsers {
			if parsers[i].Func == p.Func {
				parsers[i] = parser
				replaced = true
			}
		}
		if !replaced {
			parsers = append(parsers, parser)
		}
	}
	return &ScriptStrategy{parsers: parsers}
}

// Name implements Strategy.
func (s *ScriptStrategy) Name() string { return NameScript }

// Resolve implements Strategy.
func (s *ScriptStrategy) Resolve(_ context.Context, page *Page) ([]model.Attachment, error) {
	var out []model.Attachment

	page.Doc.Find("[onclick], a[href]").Each(func(_ int, el *goquery.Selection) {
		label := cleanText(el.Text())
		src := el.AttrOr("onclick", "")
		if href := strings.TrimSpace(el.AttrOr("href", "")); strings.HasPrefix(strings.ToLower(href), "javascript:") {
			src += ";" + href
		}
		if src == "" {
			return
		}
		out = append(out, s.parse(page, src, label)...)
	})

	page.Doc.Find("script").Each(func(_ int, el *goquery.Selection) {
		out = append(out, s.parse(page, el.Text(), "")...)
	})
	return out, nil
}

func (s *ScriptStrategy) parse(page *Page, src, label string) []model.Attachment {
	var out []model.Attachment
	for _, p := range s.parsers {
		for _, call := range FindCalls(src, p.Func) {
			if !concrete(call) {
				continue
			}
			if att, ok := p.Build(page, call, label); ok {
				out = append(out, att)
			}
		}
	}
	return out
}

// concrete rejects calls whose arguments are bare identifiers, which are
// function definitions or calls with runtime values.
func concrete(call model.ScriptCall) bool {
	if len(call.Args) == 0 {
		return false
	}
	for _, a := range call.Args {
		if identifier.MatchString(a) {
			return false
		}
	}
	return true
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

// callPatterns caches compiled call-site patterns per function name.
var (
	callMu       sync.Mutex
	callPatterns = map[string]*regexp.Regexp{}
)

// FindCalls returns every call to fn in src with its parsed arguments.
// Quoted arguments are unquoted; other arguments are kept as written.
func FindCalls(src, fn string) []model.ScriptCall {
	if fn == "" || !strings.Contains(src, fn) {
		return nil
	}
	re := callSite(fn)

	var calls []model.ScriptCall
	for _, loc := range re.FindAllStringIndex(src, -1) {
		args, ok := parseArgs(src[loc[1]:])
		if !ok {
			continue
		}
		calls = append(calls, model.ScriptCall{Func: fn, Args: args})
	}
	return calls
}

func callSite(fn string) *regexp.Regexp {
	callMu.Lock()
	defer callMu.Unlock()
	if re, ok := callPatterns[fn]; ok {
		return re
	}
	re := regexp.MustCompile(`(?:^|[^A-Za-z0-9_$.])` + regexp.QuoteMeta(fn) + `\s*\(`)
	callPatterns[fn] = re
	return re
}

// parseArgs reads a comma separated argument list up to the closing
// parenthesis. s starts right after the opening parenthesis.
func parseArgs(s string) ([]string, bool) {
	var (
		args   []string
		cur    strings.Builder
		quote  rune
		quoted bool
		escape bool
		depth  int
	)
	flush := func() {
		v := cur.String()
		if !quoted {
			v = strings.TrimSpace(v)
		}
		if v != "" || quoted {
			args = append(args, v)
		}
		cur.Reset()
		quoted = false
	}

	for _, r := range s {
		switch {
		case escape:
			cur.WriteRune(r)
			escape = false
		case quote != 0:
			switch r {
			case '\\':
				escape = true
			case quote:
				quote = 0
			default:
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			if !quoted && strings.TrimSpace(cur.String()) == "" {
				cur.Reset()
			}
			quote = r
			quoted = true
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth == 0 {
				flush()
				return args, true
			}
			depth--
			cur.WriteRune(r)
		case r == ',' && depth == 0:
			flush()
		case r == ';' || r == '{':
			return nil, false
		default:
			if !quoted {
				cur.WriteRune(r)
			}
		}
	}
	return nil, false
}

// expandRaw fills {n} placeholders without escaping; form values are
// encoded by url.Values.
func expandRaw(tmpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	return Expand(tmpl, vars, keys...)
}
