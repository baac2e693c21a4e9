package newsletters

import (
	"errors"
	"net/url"
	"strings"

	"github.com/felo/inbox-library/internal/dom"
	"golang.org/x/net/html"
)

// Built-in handler names, in default registration order
const (
	Substack     = "substack"
	Beehiiv      = "beehiiv"
	Ghost        = "ghost"
	ConvertKit   = "convertkit"
	Axios        = "axios"
	MorningBrew  = "morning-brew"
	GolangWeekly = "golang-weekly"
	Bloomberg    = "bloomberg"
	GenericList  = "generic-list"
)

// DefaultOrder is the registration order used when none is configured
var DefaultOrder = []string{
	Substack, Beehiiv, Ghost, ConvertKit, Axios, MorningBrew, GolangWeekly, Bloomberg, GenericList,
}

// listPlatforms are mailing list hosts recognised by the generic handler
var listPlatforms = []string{
	"list-manage.com", "mailchimpapp.net", "buttondown.email", "mailerlite.com",
	"sendibt", "campaign-archive.com", "createsend", "revue.email",
}

var builtins = map[string]func() Handler{
	Substack: func() Handler {
		return NewWithArticleURL(Substack, func(in Input) bool {
			return containsAny(in.PostHeader, "substack.com") || fromDomain(in, "substack.com")
		}, func(doc *html.Node) error {
			removeByClass(doc, "subscription-widget-wrap", "post-cta", "footer", "share-wrap")
			return nil
		}, substackPostURL)
	},
	Beehiiv: func() Handler {
		return New(Beehiiv, func(in Input) bool {
			return containsAny(in.PostHeader, "beehiiv.com") ||
				containsAny(in.Unsubscribe, "beehiiv.com") ||
				in.header("x-beehiiv-type") != ""
		}, func(doc *html.Node) error {
			removeByID(doc, "beehiiv-footer", "beehiiv-ad")
			removeByClass(doc, "b-ad", "b-footer")
			return nil
		})
	},
	Ghost: func() Handler {
		return New(Ghost, func(in Input) bool {
			return in.header("x-ghost-post") != "" ||
				in.header("x-mailgun-tag") == "ghost-email"
		}, func(doc *html.Node) error {
			removeByClass(doc, "feedback-buttons", "footer", "latest-posts-header")
			return nil
		})
	},
	ConvertKit: func() Handler {
		return New(ConvertKit, func(in Input) bool {
			return containsAny(in.Unsubscribe, "convertkit", "ck.page", "kit-mail") ||
				fromDomain(in, "convertkit-mail.com", "convertkit-mail2.com")
		}, nil)
	},
	Axios: func() Handler {
		return New(Axios, func(in Input) bool {
			return fromDomain(in, "axios.com")
		}, func(doc *html.Node) error {
			unwrapTables(doc)
			removeContaining(doc, "div", "view in browser")
			return nil
		})
	},
	MorningBrew: func() Handler {
		return New(MorningBrew, func(in Input) bool {
			return fromDomain(in, "morningbrew.com")
		}, func(doc *html.Node) error {
			removeByClass(doc, "sponsor", "ad-block", "share-section")
			return nil
		})
	},
	GolangWeekly: func() Handler {
		return New(GolangWeekly, func(in Input) bool {
			return fromDomain(in, "golangweekly.com")
		}, func(doc *html.Node) error {
			removeByClass(doc, "tag-sponsor", "el-sponsor")
			removeContaining(doc, "table", "sponsor")
			return nil
		})
	},
	Bloomberg: func() Handler {
		return New(Bloomberg, func(in Input) bool {
			return fromDomain(in, "bloomberg.net", "bloomberg.com", "bloombergbusiness.com")
		}, func(doc *html.Node) error {
			table := dom.FindFirst(doc, "table")
			if table == nil {
				return errors.New("bloomberg: no content table")
			}
			// masthead rows and the trailing footer/legal rows
			removeRows(table, 0, 2)
			removeRows(table, -3, len(tableRows(table)))
			return nil
		})
	},
	GenericList: func() Handler {
		return New(GenericList, func(in Input) bool {
			if in.PostHeader == "" || in.Unsubscribe == "" {
				return false
			}
			return containsAny(in.PostHeader, listPlatforms...) || containsAny(in.Unsubscribe, listPlatforms...)
		}, nil)
	},
}

// substackPostURL reads the issue URL substack puts in list-post
// (https://<pub>.substack.com/p/<slug> or a custom domain with /p/<slug>)
func substackPostURL(in Input) string {
	raw := PostURL(in.PostHeader)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.HasPrefix(u.Path, "/p/") || len(u.Path) <= len("/p/") {
		return ""
	}
	return raw
}
