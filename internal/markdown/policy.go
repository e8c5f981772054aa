package markdown

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// Rule allows Element, and optionally Attrs on it. When Pattern is set, attribute values must match it.
type Rule struct {
	Element string
	Attrs   []string
	Pattern *regexp.Regexp
}

// URLSchemes are the absolute URL schemes kept in href attributes. Relative URLs are also kept.
var URLSchemes = []string{"http", "https", "mailto"}

var (
	languageClass = regexp.MustCompile(`^language-[\w-]+$`)
	cellAlign     = regexp.MustCompile(`^(left|right|center)$`)
	checkboxType  = regexp.MustCompile(`^checkbox$`)
)

// Rules is the sanitization allowlist. Anything not listed, including img, is removed.
var Rules = []Rule{
	{Element: "h1"}, {Element: "h2"}, {Element: "h3"},
	{Element: "h4"}, {Element: "h5"}, {Element: "h6"},
	{Element: "p"}, {Element: "br"}, {Element: "hr"},
	{Element: "b"}, {Element: "i"}, {Element: "strong"}, {Element: "em"},
	{Element: "s"}, {Element: "strike"}, {Element: "del"}, {Element: "ins"},
	{Element: "sub"}, {Element: "sup"}, {Element: "kbd"}, {Element: "samp"},
	{Element: "var"}, {Element: "tt"}, {Element: "q"}, {Element: "abbr"},
	{Element: "blockquote"}, {Element: "pre"}, {Element: "code"},
	{Element: "ul"}, {Element: "ol"}, {Element: "li"},
	{Element: "dl"}, {Element: "dt"}, {Element: "dd"},
	{Element: "table"}, {Element: "thead"}, {Element: "tbody"}, {Element: "tfoot"},
	{Element: "tr"}, {Element: "td"}, {Element: "th"}, {Element: "caption"},
	{Element: "details"}, {Element: "summary"},
	{Element: "ruby"}, {Element: "rt"}, {Element: "rp"},
	{Element: "div"}, {Element: "span"},

	{Element: "a", Attrs: []string{"href", "title"}},
	{Element: "code", Attrs: []string{"class"}, Pattern: languageClass},
	{Element: "td", Attrs: []string{"align"}, Pattern: cellAlign},
	{Element: "th", Attrs: []string{"align"}, Pattern: cellAlign},
	{Element: "input", Attrs: []string{"type"}, Pattern: checkboxType},
	{Element: "input", Attrs: []string{"checked", "disabled"}},
	{Element: "ol", Attrs: []string{"start"}, Pattern: regexp.MustCompile(`^\d+$`)},
}

// NewPolicy builds a bluemonday policy from Rules
func NewPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes(URLSchemes...)

	for _, r := range Rules {
		if len(r.Attrs) == 0 {
			p.AllowElements(r.Element)
			continue
		}
		attrs := p.AllowAttrs(r.Attrs...)
		if r.Pattern != nil {
			attrs = attrs.Matching(r.Pattern)
		}
		attrs.OnElements(r.Element)
	}

	return p
}
