package rewrite

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	base, err := url.Parse("http://www.example.com/dir/page.html?q=1")
	require.NoError(t, err)

	tests := map[string]string{
		"/foo.html":                    "http://www.example.com/foo.html",
		"foo.html":                     "http://www.example.com/dir/foo.html",
		"../up.png":                    "http://www.example.com/up.png",
		"//cdn.example.net/lib.js":     "http://cdn.example.net/lib.js",
		"?page=2":                      "http://www.example.com/dir/page.html?page=2",
		"#top":                         "http://www.example.com/dir/page.html?q=1#top",
		"  spaced.html ":               "http://www.example.com/dir/spaced.html",
		"https://secure.example.org/x": "https://secure.example.org/x",
		"a%20b.html":                   "http://www.example.com/dir/a%20b.html",
	}
	for ref, want := range tests {
		u, err := Resolve(base, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, want, u.String(), ref)
	}
}

func TestResolveUnresolvable(t *testing.T) {
	base, err := url.Parse("http://www.example.com/")
	require.NoError(t, err)

	for _, ref := range []string{
		"",
		"   ",
		"mailto:someone@example.com",
		"ftp://files.example.com/x",
		"http://[::1",
		"http:///nohost",
	} {
		_, err := Resolve(base, ref)
		assert.ErrorIs(t, err, ErrUnresolvable, ref)
	}

	_, err = Resolve(nil, "relative.html")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestFormatReplayURL(t *testing.T) {
	target, err := url.Parse("https://example.com/player/?url=https%3A//api.example.com/t%3Ftoken%3Dx&auto=1")
	require.NoError(t, err)

	for kind, want := range map[ResourceKind]string{
		KindPage:       "http://replay.archive.org/2001/",
		KindImage:      "http://replay.archive.org/2001im_/",
		KindStylesheet: "http://replay.archive.org/2001cs_/",
		KindScript:     "http://replay.archive.org/2001js_/",
		KindIframe:     "http://replay.archive.org/2001if_/",
	} {
		got := FormatReplayURL("http://replay.archive.org/", "2001", target, kind)
		assert.Equal(t, want+"https://example.com/player/?url=https%3A//api.example.com/t%3Ftoken%3Dx&auto=1", got)
	}
}

func TestParseContextBase(t *testing.T) {
	var out bytes.Buffer
	ctx := newTestContext(t, &out)
	assert.Equal(t, testBase, ctx.Base().String())
	assert.Equal(t, StateHTML, ctx.State())

	got, err := ctx.ContextualizeURL("a.png", KindImage)
	require.NoError(t, err)
	assert.Equal(t, "http://replay.archive.org/2001im_/http://www.example.com/a.png", got)

	next, err := url.Parse("http://other.example.com/sub/")
	require.NoError(t, err)
	ctx.SetBase(next)
	got, err = ctx.ContextualizeURL("a.png", KindPage)
	require.NoError(t, err)
	assert.Equal(t, "http://replay.archive.org/2001/http://other.example.com/sub/a.png", got)
}
