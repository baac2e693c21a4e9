// Package newsletters detects newsletter senders and cleans up their HTML
// before it reaches the content parser.
package newsletters

import (
	"net/url"
	"strings"

	"github.com/felo/inbox-library/internal/parser"
	"golang.org/x/net/html"
)

// Input is what a handler predicate may look at
type Input struct {
	PostHeader  string // list-post
	From        string // bare sender address
	FromName    string
	Unsubscribe string // list-unsubscribe
	Headers     map[string]string
}

// InputFor builds the predicate input for an inbound message
func InputFor(msg *parser.InboundMessage) Input {
	return Input{
		PostHeader:  msg.Header("list-post"),
		From:        msg.FromAddress(),
		FromName:    msg.FromName(),
		Unsubscribe: msg.Header("list-unsubscribe"),
		Headers:     msg.Headers,
	}
}

func (in Input) header(name string) string {
	if in.Headers == nil {
		return ""
	}
	return in.Headers[strings.ToLower(name)]
}

// Metadata describes the newsletter a message belongs to
type Metadata struct {
	Name               string
	UnsubscribeMailTo  string
	UnsubscribeHTTPURL string
}

// Handler is a publisher-specific newsletter processor. Preprocess may only
// mutate the DOM it is given.
type Handler interface {
	Name() string
	IsNewsletter(in Input) bool
	Preprocess(doc *html.Node) error
	Metadata(in Input) Metadata
	// ArticleURL is the web URL of this particular issue, or "" when the
	// message carries none. It becomes the item's identity, so it must
	// differ between issues.
	ArticleURL(in Input) string
}

// handler pairs a predicate with a DOM transform
type handler struct {
	name       string
	match      func(Input) bool
	preprocess func(*html.Node) error
	articleURL func(Input) string
}

func (h *handler) Name() string { return h.name }

func (h *handler) IsNewsletter(in Input) bool { return h.match(in) }

func (h *handler) Preprocess(doc *html.Node) error {
	if h.preprocess == nil {
		return nil
	}
	return h.preprocess(doc)
}

func (h *handler) ArticleURL(in Input) string {
	if h.articleURL == nil {
		return ""
	}
	return h.articleURL(in)
}

func (h *handler) Metadata(in Input) Metadata {
	mailTo, httpURL := ParseUnsubscribe(in.Unsubscribe)
	name := strings.TrimSpace(in.FromName)
	if name == "" {
		name = in.From
	}
	return Metadata{
		Name:               name,
		UnsubscribeMailTo:  mailTo,
		UnsubscribeHTTPURL: httpURL,
	}
}

// New creates a handler from a predicate and an optional transform. Its
// messages have no article URL.
func New(name string, match func(Input) bool, preprocess func(*html.Node) error) Handler {
	return &handler{name: name, match: match, preprocess: preprocess}
}

// NewWithArticleURL is New for platforms whose messages name the web URL
// of each issue
func NewWithArticleURL(name string, match func(Input) bool, preprocess func(*html.Node) error, articleURL func(Input) string) Handler {
	return &handler{name: name, match: match, preprocess: preprocess, articleURL: articleURL}
}

// ParseUnsubscribe splits a list-unsubscribe header into its mailto address
// and its http(s) URL. Either may be empty.
func ParseUnsubscribe(header string) (mailTo, httpURL string) {
	for _, part := range strings.Split(header, ",") {
		part = strings.Trim(strings.TrimSpace(part), "<>")
		if part == "" {
			continue
		}
		u, err := url.Parse(part)
		if err != nil {
			continue
		}
		switch strings.ToLower(u.Scheme) {
		case "mailto":
			if mailTo == "" {
				mailTo = u.Opaque
				if mailTo == "" {
					mailTo = strings.TrimPrefix(u.Path, "/")
				}
				if i := strings.Index(mailTo, "?"); i >= 0 {
					mailTo = mailTo[:i]
				}
			}
		case "http", "https":
			if httpURL == "" {
				httpURL = part
			}
		}
	}
	return mailTo, httpURL
}

// PostURL returns the http(s) URL from a list-post header, if any
func PostURL(header string) string {
	for _, part := range strings.Split(header, ",") {
		part = strings.Trim(strings.TrimSpace(part), "<>")
		u, err := url.Parse(part)
		if err != nil {
			continue
		}
		if s := strings.ToLower(u.Scheme); (s == "http" || s == "https") && u.Host != "" {
			return part
		}
	}
	return ""
}

func fromDomain(in Input, domains ...string) bool {
	i := strings.LastIndex(in.From, "@")
	if i < 0 {
		return false
	}
	host := strings.ToLower(in.From[i+1:])
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles ...string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
