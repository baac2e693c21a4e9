// Package dom holds the golang.org/x/net/html traversal helpers shared by
// the content parser and the newsletter handlers.
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Walk visits every element below n in document order. Returning false from
// fn skips that element's children. fn may detach the element it is given.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type != html.ElementNode || fn(c) {
			Walk(c, fn)
		}
		c = next
	}
}

// Collect returns the outermost elements matching pred
func Collect(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if pred(c) {
			out = append(out, c)
			return false
		}
		return true
	})
	return out
}

// CollectAll returns every element matching pred, nested ones included
func CollectAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if pred(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// FindFirst returns the first element below n with the given tag
func FindFirst(n *html.Node, tag string) *html.Node {
	if n == nil {
		return nil
	}
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found == nil && strings.EqualFold(c.Data, tag) {
			found = c
		}
		return found == nil
	})
	return found
}

// FindAll returns every element below n with the given tag
func FindAll(n *html.Node, tag string) []*html.Node {
	return CollectAll(n, func(c *html.Node) bool { return strings.EqualFold(c.Data, tag) })
}

// Attr returns the value of attribute key, or ""
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// HasClass reports whether n carries any of classes
func HasClass(n *html.Node, classes ...string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		for _, want := range classes {
			if c == want {
				return true
			}
		}
	}
	return false
}

// Detach removes nodes from their parents and returns how many there were
func Detach(nodes []*html.Node) int {
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return len(nodes)
}

// Text is the whitespace-collapsed text below n
func Text(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			rec(k)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
