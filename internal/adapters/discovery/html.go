// Package discovery extracts download links from the chains' HTML index
// pages. The portals are plain server-rendered pages, so anchors are located
// with regular expressions rather than a full DOM parser; matching is done on
// the anchor's visible text, which is the stable signature on these portals.
package discovery

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Anchor is one <a> element from an index page.
type Anchor struct {
	Href string
	Text string
}

var (
	anchorRe = regexp.MustCompile(`(?is)<a\b[^>]*\bhref=["']([^"']+)["'][^>]*>(.*?)</a>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
)

// ExtractAnchors returns every anchor with a non-empty href. Inner markup is
// stripped and entities are decoded, so a label wrapped in <span> or emitted
// as &gt;&gt; still compares equal to its plain-text form.
func ExtractAnchors(content string) []Anchor {
	matches := anchorRe.FindAllStringSubmatch(content, -1)
	anchors := make([]Anchor, 0, len(matches))
	for _, m := range matches {
		href := strings.TrimSpace(html.UnescapeString(m[1]))
		if href == "" {
			continue
		}
		text := tagRe.ReplaceAllString(m[2], "")
		text = strings.TrimSpace(html.UnescapeString(text))
		anchors = append(anchors, Anchor{Href: href, Text: text})
	}
	return anchors
}

// AnchorsWithText filters anchors whose visible text equals label.
func AnchorsWithText(anchors []Anchor, label string) []Anchor {
	var out []Anchor
	for _, a := range anchors {
		if a.Text == label {
			out = append(out, a)
		}
	}
	return out
}

// LastPage finds the pagination terminator anchor (visible text ">>") and
// reads the last page number from its href's "page" query parameter.
// Returns (1, false) when the marker is absent.
func LastPage(content string) (int, bool) {
	for _, a := range ExtractAnchors(content) {
		if a.Text != ">>" {
			continue
		}
		u, err := url.Parse(a.Href)
		if err != nil {
			continue
		}
		page, err := strconv.Atoi(u.Query().Get("page"))
		if err != nil || page < 1 {
			continue
		}
		return page, true
	}
	return 1, false
}

// NormalizeHref rewrites portal hrefs into fetchable URLs: backslash path
// separators become forward slashes and relative hrefs are prefixed with the
// chain base URL.
func NormalizeHref(href, baseURL string) string {
	href = strings.ReplaceAll(href, `\`, "/")
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return base + "/" + href
}

// WithPage returns pageURL with its "page" query parameter set to n,
// preserving the other parameters.
func WithPage(pageURL string, n int) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// FilenameFromURL extracts the trailing path segment of a file URL, without
// any query string. Used to dedupe files that appear on multiple pages.
func FilenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		// Fall back to naive splitting for malformed hrefs.
		raw = strings.SplitN(raw, "?", 2)[0]
		parts := strings.Split(raw, "/")
		return parts[len(parts)-1]
	}
	parts := strings.Split(u.Path, "/")
	name := parts[len(parts)-1]
	if name == "" {
		return "unknown"
	}
	return name
}
