package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/nao1215/noticescan/internal/adapter"
	"github.com/nao1215/noticescan/internal/attachment"
)

// SiteConfig describes one board: how to fetch it, how to parse it and
// how to find its attachments.
type SiteConfig struct {
	// Name is the display name. Defaults to the registry key.
	Name string `yaml:"name,omitempty"`

	// Disabled excludes the site from --all runs.
	Disabled bool `yaml:"disabled,omitempty"`

	// Encoding forces a page encoding such as "euc-kr"; "auto" or empty
	// detects it.
	Encoding string `yaml:"encoding,omitempty"`

	// InsecureTLS skips certificate verification for boards with broken
	// chains.
	InsecureTLS bool `yaml:"insecure_tls,omitempty"`

	// Cookie is sent with every request.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// WarmupURL is visited once before the first list page.
	WarmupURL string `yaml:"warmup_url,omitempty"`

	// Browser fetches this site with headless Chrome.
	Browser bool `yaml:"browser,omitempty"`

	// WaitSelector is awaited by the browser before reading the page.
	WaitSelector string `yaml:"wait_selector,omitempty"`

	// BlockSignatures replace the default firewall page markers.
	BlockSignatures []string `yaml:"block_signatures,omitempty"`

	// RespectRobots checks robots.txt before every page.
	RespectRobots bool `yaml:"respect_robots,omitempty"`

	// MaxPages overrides the run's page limit for this site.
	MaxPages int `yaml:"max_pages,omitempty"`

	// Board describes list and detail parsing.
	adapter.Config `yaml:",inline"`

	// Attachments configures the attachment strategies.
	Attachments attachment.Config `yaml:"attachments,omitempty"`
}

// File represents the structure of the site registry YAML.
type File struct {
	// Sites maps registry names to their site configurations.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless the site sets the field.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// Names returns the registry names in sorted order.
func (cf *File) Names() []string {
	return slices.Sorted(maps.Keys(cf.Sites))
}

// EnabledNames returns the names of sites that are not disabled.
func (cf *File) EnabledNames() []string {
	var names []string
	for _, name := range cf.Names() {
		if !cf.Sites[name].Disabled {
			names = append(names, name)
		}
	}
	return names
}

// Site returns the configuration of name merged with the defaults. A
// NOTICESCAN_<NAME>_COOKIE environment variable replaces the cookie.
func (cf *File) Site(name string) (SiteConfig, error) {
	site, ok := cf.Sites[name]
	if !ok {
		return SiteConfig{}, fmt.Errorf("%w: %s", ErrUnknownSite, name)
	}
	result := merge(cf.Defaults, site)
	if result.Name == "" {
		result.Name = name
	}
	if cookie := os.Getenv(cookieEnv(name)); cookie != "" {
		result.Cookie = cookie
	}
	if err := result.Config.Validate(); err != nil {
		return SiteConfig{}, fmt.Errorf("site %s: %w", name, err)
	}
	return result, nil
}

// cookieEnv returns the environment variable carrying a site's cookie.
func cookieEnv(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return EnvPrefix + upper + "_COOKIE"
}

// merge fills the unset fields of site from defaults. Headers and detail
// fields are merged key by key with the site winning; boolean switches
// are on when either side enables them.
func merge(defaults, site SiteConfig) SiteConfig {
	r := site

	fill(&r.Encoding, defaults.Encoding)
	fill(&r.Cookie, defaults.Cookie)
	fill(&r.WarmupURL, defaults.WarmupURL)
	fill(&r.WaitSelector, defaults.WaitSelector)
	r.InsecureTLS = r.InsecureTLS || defaults.InsecureTLS
	r.Browser = r.Browser || defaults.Browser
	r.RespectRobots = r.RespectRobots || defaults.RespectRobots
	if r.MaxPages == 0 {
		r.MaxPages = defaults.MaxPages
	}
	if len(r.BlockSignatures) == 0 {
		r.BlockSignatures = defaults.BlockSignatures
	}
	r.Headers = mergeMap(defaults.Headers, site.Headers)

	fill(&r.Type, defaults.Type)
	fill(&r.BaseURL, defaults.BaseURL)
	fill(&r.Pagination.Type, defaults.Pagination.Type)
	fill(&r.Pagination.Param, defaults.Pagination.Param)

	s, d := &r.Selectors, defaults.Selectors
	fill(&s.Table, d.Table)
	fill(&s.Rows, d.Rows)
	fill(&s.Skip, d.Skip)
	fill(&s.TitleLink, d.TitleLink)
	fill(&s.Date, d.Date)
	fill(&s.Writer, d.Writer)
	fill(&s.Status, d.Status)
	fill(&s.Period, d.Period)
	fill(&s.Views, d.Views)
	fill(&s.Category, d.Category)
	fill(&s.Organization, d.Organization)
	fill(&s.Content, d.Content)
	fill(&s.Attachments, d.Attachments)
	s.DetailFields = mergeMap(d.DetailFields, site.Selectors.DetailFields)

	a, da := &r.Attachments, defaults.Attachments
	if len(a.TableSelectors) == 0 {
		a.TableSelectors = da.TableSelectors
	}
	fill(&a.ContainerPattern, da.ContainerPattern)
	if len(a.Extensions) == 0 {
		a.Extensions = da.Extensions
	}
	a.ScriptCalls = append(slices.Clone(a.ScriptCalls), da.ScriptCalls...)
	fill(&a.NameDownloadTemplate, da.NameDownloadTemplate)
	if !a.Widget.Enabled() {
		a.Widget = da.Widget
	}
	if len(a.Probe.Templates) == 0 {
		a.Probe = da.Probe
	}
	return r
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func mergeMap(defaults, site map[string]string) map[string]string {
	if len(defaults) == 0 && len(site) == 0 {
		return nil
	}
	out := make(map[string]string, len(defaults)+len(site))
	maps.Copy(out, defaults)
	maps.Copy(out, site)
	return out
}
