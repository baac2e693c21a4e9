package newsletters

import (
	"strings"

	"github.com/felo/inbox-library/internal/dom"
	"golang.org/x/net/html"
)

// removeByClass removes every element carrying one of classes
func removeByClass(doc *html.Node, classes ...string) int {
	return dom.Detach(dom.Collect(doc, func(n *html.Node) bool { return dom.HasClass(n, classes...) }))
}

// removeByID removes the elements with the given ids
func removeByID(doc *html.Node, ids ...string) int {
	return dom.Detach(dom.Collect(doc, func(n *html.Node) bool {
		id := dom.Attr(n, "id")
		for _, want := range ids {
			if id == want {
				return true
			}
		}
		return false
	}))
}

// removeContaining removes the innermost tag elements whose text contains marker
func removeContaining(doc *html.Node, tag, marker string) int {
	marker = strings.ToLower(marker)
	contains := func(n *html.Node) bool {
		return n.Data == tag && strings.Contains(strings.ToLower(dom.Text(n)), marker)
	}
	var matches []*html.Node
	dom.Walk(doc, func(n *html.Node) bool {
		if contains(n) && len(dom.Collect(n, contains)) == 0 {
			matches = append(matches, n)
			return false
		}
		return true
	})
	return dom.Detach(matches)
}

// tableRows returns the direct rows of a table, looking through tbody/thead
func tableRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	for c := table.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "tr":
			rows = append(rows, c)
		case "tbody", "thead", "tfoot":
			for r := c.FirstChild; r != nil; r = r.NextSibling {
				if r.Type == html.ElementNode && r.Data == "tr" {
					rows = append(rows, r)
				}
			}
		}
	}
	return rows
}

// removeRows drops the rows of table in [from, to); negative bounds count
// from the end. Out-of-range bounds are clamped.
func removeRows(table *html.Node, from, to int) int {
	rows := tableRows(table)
	if from < 0 {
		from += len(rows)
	}
	if to < 0 {
		to += len(rows)
	}
	from = max(from, 0)
	to = min(to, len(rows))
	if from >= to {
		return 0
	}
	return dom.Detach(rows[from:to])
}

// unwrapTables replaces single-cell layout tables with their cell content
func unwrapTables(doc *html.Node) int {
	tables := dom.FindAll(doc, "table")
	count := 0
	// innermost first so parents see already-unwrapped children
	for i := len(tables) - 1; i >= 0; i-- {
		t := tables[i]
		rows := tableRows(t)
		if len(rows) != 1 || t.Parent == nil {
			continue
		}
		var cells []*html.Node
		for c := rows[0].FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
				cells = append(cells, c)
			}
		}
		if len(cells) != 1 {
			continue
		}
		div := &html.Node{Type: html.ElementNode, Data: "div"}
		for c := cells[0].FirstChild; c != nil; {
			next := c.NextSibling
			cells[0].RemoveChild(c)
			div.AppendChild(c)
			c = next
		}
		t.Parent.InsertBefore(div, t)
		t.Parent.RemoveChild(t)
		count++
	}
	return count
}
