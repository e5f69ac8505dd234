package attachment

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the per-site tables that drive the strategies. Everything
// here is data from the site YAML; the zero value enables only the generic
// strategies.
type Config struct {
	// Widget configures the upload-widget strategy.
	Widget WidgetConfig `yaml:"widget"`

	// TableSelectors are containers holding a file table.
	TableSelectors []string `yaml:"table_selectors"`

	// ContainerPattern matches class or id values of file sections.
	ContainerPattern string `yaml:"container_pattern"`

	// ScriptCalls add download call parsers.
	ScriptCalls []CallPattern `yaml:"script_calls"`

	// Extensions recognized by the direct-link strategy, with dots.
	Extensions []string `yaml:"extensions"`

	// NameDownloadTemplate turns a file name found in text into a URL.
	// {name} is replaced by the escaped name.
	NameDownloadTemplate string `yaml:"name_download_template"`

	// Probe configures the existence-probe strategy.
	Probe ProbeConfig `yaml:"probe"`

	// KnownFiles are attachments tied to specific detail pages.
	KnownFiles []KnownFile `yaml:"known_files"`
}

// WidgetConfig describes an upload widget backed by a file list API.
type WidgetConfig struct {
	// Marker is a substring whose presence in the page enables the strategy.
	Marker string `yaml:"marker"`

	// IDPattern extracts the file group id; the first group is used.
	IDPattern string `yaml:"id_pattern"`

	// ListURL is the list API; {id} is replaced by the group id.
	ListURL string `yaml:"list_url"`

	// ListParam is the form field carrying the group id.
	ListParam string `yaml:"list_param"`

	// DownloadTemplates build candidates; {id}, {file_id} and {name} are
	// replaced.
	DownloadTemplates []string `yaml:"download_templates"`
}

// Enabled reports whether the widget is configured.
func (w WidgetConfig) Enabled() bool {
	return w.Marker != "" && w.IDPattern != "" && w.ListURL != "" && len(w.DownloadTemplates) > 0
}

// CallPattern describes one named download call, e.g.
// fnFileDown('123','1') with template "/file/down.do?id={1}&sn={2}".
type CallPattern struct {
	// Func is the JavaScript function name.
	Func string `yaml:"func"`

	// Template is the download URL; {1}..{n} are the call arguments.
	Template string `yaml:"template"`

	// Method is GET or POST.
	Method string `yaml:"method"`

	// Form is sent as POST parameters; values are templated like Template.
	Form map[string]string `yaml:"form"`

	// NameArg is the 1-based argument holding the file name, 0 for none.
	NameArg int `yaml:"name_arg"`
}

// ProbeConfig drives the existence-probe strategy.
type ProbeConfig struct {
	// HashPattern finds partial file hashes in page scripts.
	HashPattern string `yaml:"hash_pattern"`

	// Templates are candidate paths; {hash} and {ext} are replaced.
	Templates []string `yaml:"templates"`

	// Extensions are tried for every template.
	Extensions []string `yaml:"extensions"`

	// Retries is the number of attempts per probe.
	Retries int `yaml:"retries"`

	// MinSize accepts an HTML-typed hit when its length reaches it.
	MinSize int64 `yaml:"min_size"`

	// Timeout bounds each probe.
	Timeout time.Duration `yaml:"timeout"`
}

// KnownFile is an attachment known to belong to a detail page.
type KnownFile struct {
	// PageMatch is a substring of the detail page URL.
	PageMatch string `yaml:"page_match"`

	// Name is the display name.
	Name string `yaml:"name"`

	// Size is the display size.
	Size string `yaml:"size"`

	// Paths are candidate locations tried in order.
	Paths []string `yaml:"paths"`
}

// Defaults.
var (
	// DefaultTableSelectors cover DEXT5 and common board skins.
	DefaultTableSelectors = []string{".dext5-multi-container", ".file_table", "table.file"}

	// DefaultContainerPattern matches file section class and id values.
	DefaultContainerPattern = `(?i)file|attach|첨부`

	// DefaultExtensions are document types found on public boards.
	DefaultExtensions = []string{
		".pdf", ".hwp", ".hwpx", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
		".zip", ".rar", ".7z", ".txt", ".csv", ".jpg", ".jpeg", ".png", ".gif",
	}

	// DefaultHashPattern matches partial file hashes.
	DefaultHashPattern = `[a-f0-9]{12,16}`

	// DefaultProbeExtensions are tried by the existence probe.
	DefaultProbeExtensions = []string{".pdf", ".hwp"}
)

// Default probe tuning.
const (
	DefaultProbeRetries = 2
	DefaultProbeMinSize = 10_000
	DefaultProbeTimeout = 5 * time.Second
)

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if len(c.TableSelectors) == 0 {
		c.TableSelectors = DefaultTableSelectors
	}
	if c.ContainerPattern == "" {
		c.ContainerPattern = DefaultContainerPattern
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
	if c.Widget.ListParam == "" {
		c.Widget.ListParam = "targetAtchFileId"
	}
	if c.Probe.HashPattern == "" {
		c.Probe.HashPattern = DefaultHashPattern
	}
	if len(c.Probe.Extensions) == 0 {
		c.Probe.Extensions = DefaultProbeExtensions
	}
	if c.Probe.Retries <= 0 {
		c.Probe.Retries = DefaultProbeRetries
	}
	if c.Probe.MinSize <= 0 {
		c.Probe.MinSize = DefaultProbeMinSize
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = DefaultProbeTimeout
	}
	return c
}

var placeholder = regexp.MustCompile(`\{([a-z_0-9]+)\}`)

// Expand replaces {key} placeholders in tmpl. Values are query-escaped
// except "ext", "hash" and keys listed in raw. Unknown placeholders are
// left in place.
func Expand(tmpl string, vars map[string]string, raw ...string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := vars[key]
		if !ok {
			return m
		}
		if key == "ext" || key == "hash" {
			return v
		}
		for _, r := range raw {
			if r == key {
				return v
			}
		}
		return url.QueryEscape(v)
	})
}

// positional returns {1}..{n} variables for call arguments.
func positional(args []string) map[string]string {
	vars := make(map[string]string, len(args))
	for i, a := range args {
		vars[strconv.Itoa(i+1)] = a
	}
	return vars
}

// hasExtension reports whether name ends in one of exts.
func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
