package rewrite

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteEmbeddedURLs(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{
			"javascript href",
			"javascript:doWin('http://www.symphony.org')",
			"javascript:doWin('http://replay.archive.org/2001/http://www.symphony.org')",
		},
		{
			"path untouched",
			`location = "https://shop.example.net:8080/cart?id=1"`,
			`location = "http://replay.archive.org/2001/https://shop.example.net:8080/cart?id=1"`,
		},
		{
			"escaped slashes",
			`{"u":"http:\/\/api.example.org\/v1"}`,
			`{"u":"http:\/\/replay.archive.org\/2001\/http:\/\/api.example.org\/v1"}`,
		},
		{
			"already wrapped",
			"go('http://replay.archive.org/2001/http://www.example.com/x')",
			"go('http://replay.archive.org/2001/http://www.example.com/x')",
		},
		{
			"already wrapped with modifier",
			"img.src='http://replay.archive.org/2001im_/http://www.example.com/x.png'",
			"img.src='http://replay.archive.org/2001im_/http://www.example.com/x.png'",
		},
		{
			"no scheme",
			"var x = '//cdn.example.org/a.js'",
			"var x = '//cdn.example.org/a.js'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			ctx := newTestContext(t, &out)
			assert.Equal(t, tt.want, RewriteEmbeddedURLs(ctx, tt.in))
		})
	}
}

func TestTransformed(t *testing.T) {
	v, ok := Some("x").Get()
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = Some("").Get()
	assert.True(t, ok, "empty text is not suppression")
	assert.Empty(t, v)

	_, ok = None().Get()
	assert.False(t, ok)
}

// A script-URL transformer can suppress javascript: hrefs.
func TestScriptURLSuppression(t *testing.T) {
	opts := Options{
		ScriptURL: func(*ParseContext, string) Transformed { return None() },
	}
	in := `<a href="javascript:void(0)">x</a><a href="ok.html">y</a>`
	want := `<a href="">x</a><a href="http://replay.archive.org/2001/http://www.example.com/ok.html">y</a>`
	assert.Equal(t, want, rewriteEndToEnd(t, opts, in))
}

func TestIsJavascriptURL(t *testing.T) {
	assert.True(t, isJavascriptURL("javascript:void(0)"))
	assert.True(t, isJavascriptURL("  JavaScript:go()"))
	assert.False(t, isJavascriptURL("java.html"))
}
