package content

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/felo/inbox-library/internal/dom"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

type countingFetcher struct {
	calls atomic.Int32
	icon  string
	err   error
}

func (f *countingFetcher) FetchIcon(_ context.Context, pageURL string) (string, error) {
	f.calls.Add(1)
	return f.icon, f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const articleHTML = `<!doctype html>
<html>
  <head>
    <title>Fallback Title</title>
    <meta property="og:title" content="The Real Title">
    <meta name="author" content="Ada Lovelace">
    <meta property="og:site_name" content="Example Times">
    <meta property="article:published_time" content="2024-03-01T10:00:00Z">
    <link rel="canonical" href="/articles/engines">
    <link rel="icon" href="data:image/png;base64,iVBORw0KGgo=">
  </head>
  <body>
    <nav>Home | About</nav>
    <article>
      <h1>Analytical Engines</h1>
      <p>The engine weaves algebraic patterns.</p>
      <script>alert("x")</script>
    </article>
    <footer>Copyright</footer>
  </body>
</html>`

func TestParse_ExtractsMetadata(t *testing.T) {
	fetcher := &countingFetcher{icon: "https://example.com/favicon.ico"}
	p := NewParser(fetcher, testLogger())

	nc := p.Parse(context.Background(), "https://Example.com/a?utm_source=mail#top", articleHTML, Options{})

	assert.Equal(t, "The Real Title", nc.Title)
	assert.Equal(t, "Ada Lovelace", nc.Author)
	assert.Equal(t, "Example Times", nc.SiteName)
	assert.Equal(t, "https://example.com/articles/engines", nc.CanonicalURL)
	require.NotNil(t, nc.PublishedAt)
	assert.Equal(t, 2024, nc.PublishedAt.Year())

	assert.Contains(t, nc.HTMLContent, "The engine weaves algebraic patterns.")
	assert.NotContains(t, nc.HTMLContent, "<script", "content is sanitized")
	assert.NotContains(t, nc.HTMLContent, "Home | About")
	assert.Equal(t, 7, nc.WordCount)
	assert.Equal(t, ContentHash("Analytical Engines\nThe engine weaves algebraic patterns."), nc.ContentHash)
	assert.Contains(t, nc.Excerpt, "Analytical Engines")

	assert.Equal(t, int32(1), fetcher.calls.Load(), "inlined base64 icons are replaced by a fetched favicon")
	assert.Equal(t, "https://example.com/favicon.ico", nc.SiteIcon)
}

func TestParse_DeclaredIconIsKept(t *testing.T) {
	fetcher := &countingFetcher{}
	p := NewParser(fetcher, testLogger())

	doc := `<html><head><link rel="shortcut icon" href="/static/icon.png"></head><body><p>hi there</p></body></html>`
	nc := p.Parse(context.Background(), "https://example.com/post", doc, Options{})

	assert.Equal(t, "https://example.com/static/icon.png", nc.SiteIcon)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestParse_StubURLSkipsFetch(t *testing.T) {
	fetcher := &countingFetcher{icon: "https://example.com/favicon.ico"}
	p := NewParser(fetcher, testLogger())
	stub := StubURL("message-1@example.com")

	nc := p.Parse(context.Background(), stub, articleHTML, Options{})

	assert.Equal(t, int32(0), fetcher.calls.Load(), "stub urls never trigger a fetch")
	assert.Equal(t, stub, nc.CanonicalURL, "stub urls are kept as canonical")
	assert.Empty(t, nc.SiteIcon)
}

func TestParse_StubURLIgnoresRelativeIcon(t *testing.T) {
	fetcher := &countingFetcher{}
	p := NewParser(fetcher, testLogger())
	stub := StubURL("issue-7@example.com")

	relative := `<html><head><link rel="icon" href="/favicon.png"></head><body><p>newsletter body</p></body></html>`
	nc := p.Parse(context.Background(), stub, relative, Options{})
	assert.Empty(t, nc.SiteIcon, "a relative icon has no host to resolve against")

	absolute := `<html><head><link rel="icon" href="https://cdn.example.com/logo.png"></head><body><p>newsletter body</p></body></html>`
	nc = p.Parse(context.Background(), stub, absolute, Options{})
	assert.Equal(t, "https://cdn.example.com/logo.png", nc.SiteIcon)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestParse_IconFetchFailureDegrades(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("timeout")}
	p := NewParser(fetcher, testLogger())

	nc := p.Parse(context.Background(), "https://example.com/post", "<p>no icon here</p>", Options{})

	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Empty(t, nc.SiteIcon)
	assert.Equal(t, 3, nc.WordCount)
}

func TestParse_HintsTakePrecedence(t *testing.T) {
	p := NewParser(nil, testLogger())

	nc := p.Parse(context.Background(), StubURL("x"), articleHTML, Options{Title: "Subject line", Author: "Sender"})

	assert.Equal(t, "Subject line", nc.Title)
	assert.Equal(t, "Sender", nc.Author)
}

func TestParse_PreprocessApplied(t *testing.T) {
	p := NewParser(nil, testLogger())

	dropHeading := func(doc *html.Node) error {
		h1 := dom.FindFirst(doc, "h1")
		h1.Parent.RemoveChild(h1)
		return nil
	}
	nc := p.Parse(context.Background(), StubURL("x"), articleHTML, Options{Preprocess: dropHeading})

	assert.NotContains(t, nc.HTMLContent, "Analytical Engines")
	assert.Contains(t, nc.HTMLContent, "algebraic patterns")
}

func TestParse_PreprocessFaultFallsBackToUnmodified(t *testing.T) {
	p := NewParser(nil, testLogger())

	tests := []struct {
		name string
		fn   func(*html.Node) error
	}{
		{
			name: "error",
			fn: func(doc *html.Node) error {
				h1 := dom.FindFirst(doc, "h1")
				h1.Parent.RemoveChild(h1)
				return errors.New("layout changed")
			},
		},
		{
			name: "panic",
			fn: func(doc *html.Node) error {
				var n *html.Node
				_ = n.Data
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nc := p.Parse(context.Background(), StubURL("x"), articleHTML, Options{Preprocess: tt.fn, PreprocessName: tt.name})
			assert.Contains(t, nc.HTMLContent, "Analytical Engines", "unmodified content is used")
		})
	}
}

func TestParse_MalformedInput(t *testing.T) {
	p := NewParser(nil, testLogger())

	for _, doc := range []string{"", "<<<not <html", "<div><p>unclosed <b>tags"} {
		nc := p.Parse(context.Background(), "not a url", doc, Options{})
		require.NotNil(t, nc)
		assert.NotEmpty(t, nc.ContentHash, "hash is always computed for %q", doc)
		assert.Nil(t, nc.PublishedAt)
	}

	nc := p.Parse(context.Background(), "https://example.com", "<div><p>unclosed <b>tags", Options{})
	assert.Equal(t, 2, nc.WordCount)
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("a  b\n\nc"), ContentHash("a b c"), "whitespace is normalized")
	assert.NotEqual(t, ContentHash("a b c"), ContentHash("a b d"))
	assert.Len(t, ContentHash(""), 64)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTPS://Example.COM/Path/", "https://example.com/Path"},
		{"https://example.com/a?utm_source=x&id=3#frag", "https://example.com/a?id=3"},
		{"https://example.com/", "https://example.com/"},
		{"  https://example.com/a  ", "https://example.com/a"},
		{"not a url", "not a url"},
		{StubURL("id@x"), StubURL("id@x")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeURL(tt.input))
		})
	}
}

func TestStubURL(t *testing.T) {
	stub := StubURL("abc@mail.example.com")

	assert.True(t, IsStubURL(stub))
	assert.True(t, strings.HasPrefix(stub, StubURLPrefix))
	assert.False(t, IsStubURL("https://example.com/no_url?q=abc"))
}

func TestHTTPIconFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/favicon.ico" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/x-icon")
		w.Write([]byte{0, 0, 1, 0})
	}))
	defer srv.Close()

	f := &HTTPIconFetcher{HTTPClient: srv.Client()}
	icon, err := f.FetchIcon(context.Background(), srv.URL+"/some/article")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/favicon.ico", icon)

	_, err = f.FetchIcon(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)
}

func TestHTTPIconFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := &HTTPIconFetcher{HTTPClient: srv.Client()}
	_, err := f.FetchIcon(context.Background(), srv.URL)
	assert.Error(t, err)
}
