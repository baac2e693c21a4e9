package content

import (
	"strings"

	"github.com/felo/inbox-library/internal/dom"
	"golang.org/x/net/html"
)

// metaContent returns the content of the first <meta> whose name or
// property matches one of keys, in key order.
func metaContent(doc *html.Node, keys ...string) string {
	metas := dom.FindAll(doc, "meta")
	for _, key := range keys {
		for _, m := range metas {
			if strings.EqualFold(dom.Attr(m, "property"), key) || strings.EqualFold(dom.Attr(m, "name"), key) {
				if v := strings.TrimSpace(dom.Attr(m, "content")); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// linkHref returns the href of the first <link> whose rel contains rel
func linkHref(doc *html.Node, rel string) string {
	for _, l := range dom.FindAll(doc, "link") {
		for _, r := range strings.Fields(strings.ToLower(dom.Attr(l, "rel"))) {
			if r == rel {
				if href := strings.TrimSpace(dom.Attr(l, "href")); href != "" {
					return href
				}
			}
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	collectText(&b, n, false)
	return normalizeWhitespace(b.String())
}

// contentRoot picks <article>, then <main>, then <body>
func contentRoot(doc *html.Node) *html.Node {
	for _, tag := range []string{"article", "main", "body"} {
		if n := dom.FindFirst(doc, tag); n != nil {
			return n
		}
	}
	return doc
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "nav", "footer", "aside", "iframe", "head":
			return
		case "pre", "code":
			inPre = true
		case "br", "hr", "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "tr", "div":
			b.WriteString("\n")
		case "td", "th":
			b.WriteString(" ")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n\n")
		case "li", "pre", "code":
			b.WriteString("\n")
		}
	}
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.Join(strings.Fields(line), " ")
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, trimmed)
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func renderChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return ""
		}
	}
	return b.String()
}
