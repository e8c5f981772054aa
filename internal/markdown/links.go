package markdown

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	linkTarget = "_blank"
	linkRel    = "nofollow ugc noopener noreferrer"
)

// rewriteLinks sets target and rel on every anchor, leaving all other markup byte for byte
func rewriteLinks(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	b.Grow(len(s) + 64)

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF
			return b.String()
		}

		raw := z.Raw()
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			b.Write(raw)
			continue
		}

		raw = append([]byte(nil), raw...)
		tok := z.Token()
		if tok.DataAtom != atom.A {
			b.Write(raw)
			continue
		}

		attrs := make([]html.Attribute, 0, len(tok.Attr)+2)
		for _, a := range tok.Attr {
			if a.Key == "target" || a.Key == "rel" {
				continue
			}
			attrs = append(attrs, a)
		}
		tok.Attr = append(attrs,
			html.Attribute{Key: "target", Val: linkTarget},
			html.Attribute{Key: "rel", Val: linkRel},
		)
		b.WriteString(tok.String())
	}
}
