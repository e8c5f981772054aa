// Package markdown converts untrusted Markdown into HTML that is safe to embed in a page.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	converter = goldmark.New(
		goldmark.WithExtensions(
			extension.NewTable(extension.WithTableCellAlignMethod(extension.TableCellAlignAttribute)),
			extension.Strikethrough,
			extension.Linkify,
			extension.TaskList,
		),
		// raw HTML stays omitted: html.WithUnsafe is never set
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	policy = NewPolicy()
)

// Render converts markdown to sanitized HTML. It never fails; degenerate input yields empty
// or minimal output.
func Render(markdown string) string {
	var buf bytes.Buffer
	if err := converter.Convert([]byte(markdown), &buf); err != nil {
		return ""
	}

	safe := policy.SanitizeReader(&buf)
	return strings.TrimRight(rewriteLinks(safe.String()), "\n")
}
