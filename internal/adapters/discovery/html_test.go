package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAnchors(t *testing.T) {
	page := `
	<html><body>
		<a href="/file1.gz">לחץ להורדה</a>
		<a href='/file2.gz' class="dl"><span>לחץ להורדה</span></a>
		<a href="/about">אודות</a>
		<A HREF="/file3.gz">לחץ להורדה</A>
	</body></html>`

	anchors := ExtractAnchors(page)
	require.Len(t, anchors, 4)

	downloads := AnchorsWithText(anchors, "לחץ להורדה")
	require.Len(t, downloads, 3)
	assert.Equal(t, "/file1.gz", downloads[0].Href)
	assert.Equal(t, "/file2.gz", downloads[1].Href, "nested markup should not hide the label")
	assert.Equal(t, "/file3.gz", downloads[2].Href)
}

func TestExtractAnchorsDecodesEntities(t *testing.T) {
	page := `<a href="/UpdateCategory?catID=2&amp;page=3">&gt;&gt;</a>`
	anchors := ExtractAnchors(page)
	require.Len(t, anchors, 1)
	assert.Equal(t, ">>", anchors[0].Text)
	assert.Equal(t, "/UpdateCategory?catID=2&page=3", anchors[0].Href)
}

func TestLastPage(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected int
		found    bool
	}{
		{
			name:     "marker with page param",
			html:     `<a href="?catID=2&page=3">&gt;&gt;</a>`,
			expected: 3,
			found:    true,
		},
		{
			name:     "marker among other anchors",
			html:     `<a href="?page=2">2</a><a href="?page=9">&gt;&gt;</a>`,
			expected: 9,
			found:    true,
		},
		{
			name:     "no marker",
			html:     `<a href="?page=2">2</a><a href="?page=3">3</a>`,
			expected: 1,
			found:    false,
		},
		{
			name:     "marker without page param",
			html:     `<a href="/somewhere">&gt;&gt;</a>`,
			expected: 1,
			found:    false,
		},
		{
			name:     "empty page",
			html:     ``,
			expected: 1,
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, found := LastPage(tt.html)
			assert.Equal(t, tt.expected, page)
			assert.Equal(t, tt.found, found)
		})
	}
}

func TestNormalizeHref(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		base     string
		expected string
	}{
		{
			name:     "backslashes and relative",
			href:     `stores\store.gz`,
			base:     "http://example.co.il",
			expected: "http://example.co.il/stores/store.gz",
		},
		{
			name:     "absolute untouched",
			href:     "https://cdn.example.co.il/prices/p.gz",
			base:     "http://example.co.il",
			expected: "https://cdn.example.co.il/prices/p.gz",
		},
		{
			name:     "rooted path",
			href:     "/files/p.gz",
			base:     "http://example.co.il/",
			expected: "http://example.co.il/files/p.gz",
		},
		{
			name:     "backslashes in absolute",
			href:     `http://example.co.il\files\p.gz`,
			base:     "http://example.co.il",
			expected: "http://example.co.il/files/p.gz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeHref(tt.href, tt.base))
		})
	}
}

func TestWithPage(t *testing.T) {
	got := WithPage("https://example.co.il/UpdateCategory?catID=2&storeId=0", 2)
	assert.Contains(t, got, "page=2")
	assert.Contains(t, got, "catID=2")
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://x.co.il/files/PriceFull7290027600007-001-20260825.gz?token=abc", "PriceFull7290027600007-001-20260825.gz"},
		{"https://x.co.il/files/a.gz", "a.gz"},
		{"https://x.co.il/", "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FilenameFromURL(tt.url))
	}
}
