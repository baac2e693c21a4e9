package content

import (
	"net/url"
	"strings"
)

// StubURLPrefix marks content that has no real source URL, such as an email
// body saved directly. Stub URLs are never fetched.
const StubURLPrefix = "https://inbox-library.local/no_url?q="

// StubURL builds the stub URL for a key (usually a message id)
func StubURL(key string) string {
	return StubURLPrefix + url.QueryEscape(key)
}

// IsStubURL reports whether u carries the reserved stub prefix
func IsStubURL(u string) bool {
	return strings.HasPrefix(u, StubURLPrefix)
}

// NormalizeURL lower-cases scheme and host, drops the fragment and utm_*
// tracking parameters, and trims a trailing slash from the path.
// Unparseable input is returned trimmed but otherwise unchanged.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || IsStubURL(raw) {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	return u.String()
}

// resolveURL resolves ref against base; returns "" when either is unusable
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return ""
	}
	return b.ResolveReference(r).String()
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
