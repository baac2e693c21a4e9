// Package content turns raw HTML documents into normalized article metadata.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/felo/inbox-library/internal/dom"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// excerptLength is the rune budget of an excerpt derived from body text
const excerptLength = 280

// NormalizedContent is the parsed, immutable view of a document
type NormalizedContent struct {
	CanonicalURL string
	Title        string
	Author       string
	HTMLContent  string
	Excerpt      string
	SiteName     string
	SiteIcon     string
	PublishedAt  *time.Time
	ContentHash  string
	WordCount    int
}

// Options tune a single Parse call
type Options struct {
	// Title and Author take precedence over what the document declares
	Title  string
	Author string

	// Preprocess rewrites the parsed DOM before extraction. A failing
	// preprocessor is skipped and the unmodified document is used.
	Preprocess     func(doc *html.Node) error
	PreprocessName string

	SkipIconFetch bool
}

// IconFetcher finds a site icon for a page. Implementations must bound their
// own work; an error means "unknown".
type IconFetcher interface {
	FetchIcon(ctx context.Context, pageURL string) (string, error)
}

// Parser extracts NormalizedContent from documents
type Parser struct {
	icons  IconFetcher
	policy *bluemonday.Policy
	logger *logrus.Logger
}

// NewParser creates a parser; icons may be nil to disable favicon lookups
func NewParser(icons IconFetcher, logger *logrus.Logger) *Parser {
	return &Parser{
		icons:  icons,
		policy: bluemonday.UGCPolicy(),
		logger: logger,
	}
}

// Parse never fails: unreadable documents produce best-effort metadata with
// the raw input as content.
func (p *Parser) Parse(ctx context.Context, rawURL, document string, opts Options) *NormalizedContent {
	nc := &NormalizedContent{
		CanonicalURL: NormalizeURL(rawURL),
		Title:        strings.TrimSpace(opts.Title),
		Author:       strings.TrimSpace(opts.Author),
	}

	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		p.logger.WithError(err).WithField("url", rawURL).Warn("Failed to parse document, using raw input")
		p.fillFromRaw(nc, document)
		return nc
	}

	if opts.Preprocess != nil {
		if err := runPreprocess(opts.Preprocess, doc); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"handler": opts.PreprocessName,
				"url":     rawURL,
			}).Error("Newsletter handler failed, using unmodified content")
			// the DOM may be half-rewritten
			if doc, err = html.Parse(strings.NewReader(document)); err != nil {
				p.fillFromRaw(nc, document)
				return nc
			}
		}
	}

	if nc.Title == "" {
		nc.Title = firstNonEmpty(
			metaContent(doc, "og:title", "twitter:title"),
			titleText(doc),
			headingText(doc),
		)
	}
	if nc.Author == "" {
		nc.Author = metaContent(doc, "author", "article:author", "byl")
	}

	if canonical := resolveURL(rawURL, linkHref(doc, "canonical")); canonical != "" && isHTTPURL(canonical) && !IsStubURL(rawURL) {
		nc.CanonicalURL = NormalizeURL(canonical)
	}

	nc.SiteName = metaContent(doc, "og:site_name", "application-name")
	if nc.SiteName == "" && !IsStubURL(rawURL) {
		nc.SiteName = hostOf(nc.CanonicalURL)
	}

	nc.PublishedAt = publishedAt(doc)

	root := contentRoot(doc)
	text := nodeText(root)
	nc.HTMLContent = strings.TrimSpace(p.policy.Sanitize(renderChildren(root)))
	if text == "" {
		p.fillFromRaw(nc, document)
	} else {
		nc.ContentHash = ContentHash(text)
		nc.WordCount = WordCount(text)
	}

	if excerpt := metaContent(doc, "og:description", "description", "twitter:description"); excerpt != "" {
		nc.Excerpt = excerpt
	} else if nc.Excerpt == "" {
		nc.Excerpt = truncateRunes(text, excerptLength)
	}

	nc.SiteIcon = p.siteIcon(ctx, rawURL, nc.CanonicalURL, doc, opts)
	return nc
}

// fillFromRaw is the degraded path: the raw input becomes the content
func (p *Parser) fillFromRaw(nc *NormalizedContent, document string) {
	nc.HTMLContent = strings.TrimSpace(p.policy.Sanitize(document))
	text := normalizeWhitespace(bluemonday.StrictPolicy().Sanitize(document))
	if text == "" {
		text = document
	}
	nc.ContentHash = ContentHash(text)
	nc.WordCount = WordCount(text)
	if nc.Excerpt == "" {
		nc.Excerpt = truncateRunes(text, excerptLength)
	}
}

// siteIcon prefers the declared icon; inlined base64 icons are rejected and
// replaced by a fetched favicon. Stub URLs are never fetched, and relative
// icons are not resolved against them.
func (p *Parser) siteIcon(ctx context.Context, rawURL, canonicalURL string, doc *html.Node, opts Options) string {
	icon := firstNonEmpty(linkHref(doc, "icon"), linkHref(doc, "apple-touch-icon"))
	if icon != "" && !strings.HasPrefix(strings.ToLower(icon), "data:") {
		base := canonicalURL
		if IsStubURL(rawURL) {
			base = ""
		}
		if resolved := resolveURL(base, icon); resolved != "" && isHTTPURL(resolved) {
			return resolved
		}
	}

	if IsStubURL(rawURL) || opts.SkipIconFetch || p.icons == nil || !isHTTPURL(canonicalURL) {
		return ""
	}

	fetched, err := p.icons.FetchIcon(ctx, canonicalURL)
	if err != nil {
		p.logger.WithError(err).WithField("url", canonicalURL).Debug("Favicon lookup failed")
		return ""
	}
	return fetched
}

func runPreprocess(fn func(*html.Node) error, doc *html.Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("preprocess panicked: %v", r)
		}
	}()
	return fn(doc)
}

// ContentHash is the hex SHA-256 of whitespace-normalized text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
	return hex.EncodeToString(sum[:])
}

// WordCount counts whitespace-separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func titleText(doc *html.Node) string {
	head := dom.FindFirst(doc, "head")
	if head == nil {
		return ""
	}
	t := dom.FindFirst(head, "title")
	if t == nil {
		return ""
	}
	return strings.Join(strings.Fields(nodeText(t)), " ")
}

func headingText(doc *html.Node) string {
	h := dom.FindFirst(doc, "h1")
	if h == nil {
		return ""
	}
	return strings.Join(strings.Fields(nodeText(h)), " ")
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func publishedAt(doc *html.Node) *time.Time {
	candidates := []string{metaContent(doc, "article:published_time", "date", "pubdate")}
	for _, t := range dom.FindAll(doc, "time") {
		candidates = append(candidates, dom.Attr(t, "datetime"))
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		for _, layout := range publishedLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
