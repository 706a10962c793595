package wayback

import (
	"errors"
	"testing"

	"github.com/sigman78/wayback-rewrite/internal/htmllex"
	"github.com/sigman78/wayback-rewrite/internal/rewrite"
)

const testPrefix = "http://replay.example.org/"

func testEngine(t *testing.T) *rewrite.Engine {
	t.Helper()
	e, err := DefaultConfig().NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func testDoc(u string) Document {
	return Document{URL: u, Timestamp: "20010101000000", Prefix: testPrefix}
}

func TestDetectRewriter(t *testing.T) {
	cases := []struct {
		path, ct string
		first    string
		want     string
	}{
		{"index.html", "", "", "html"},
		{"page", "text/html", "", "html"},
		{"page", "", "<html>", "html"},
		{"site.css", "", "", "css"},
		{"style", "text/css", "<!-- looks like markup -->", "css"},
		{"logo.png", "", "\x89PNG", ""},
	}
	for _, tc := range cases {
		rw := DetectRewriter(tc.path, tc.ct, []byte(tc.first))
		got := ""
		if rw != nil {
			got = rewriterKind(rw)
		}
		if got != tc.want {
			t.Errorf("DetectRewriter(%q, %q) = %q, want %q", tc.path, tc.ct, got, tc.want)
		}
	}
}

func TestHTMLRewriter(t *testing.T) {
	src := `<html><head><link rel="stylesheet" href="css/site.css"></head>` +
		`<body><img src="/logo.gif"><a href="mailto:me@example.com">mail</a></body></html>`
	out, stats, err := HTMLRewriter{}.Rewrite(testEngine(t), testDoc("http://example.com/dir/page.html"), []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	want := `<html><head><link rel="stylesheet" href="http://replay.example.org/20010101000000cs_/http://example.com/dir/css/site.css"></head>` +
		`<body><img src="http://replay.example.org/20010101000000im_/http://example.com/logo.gif"><a href="mailto:me@example.com">mail</a></body></html>`
	if string(out) != want {
		t.Errorf("output\n  got  %s\n  want %s", out, want)
	}
	if stats.Rewritten != 2 || stats.Unresolved != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// A Latin-1 page is decoded for rewriting and written back in Latin-1.
func TestHTMLRewriterLatin1RoundTrip(t *testing.T) {
	src := "<meta charset=\"iso-8859-1\"><p>caf\xe9</p><a href=\"/caf\xe9.html\">x</a>"
	out, _, err := HTMLRewriter{}.Rewrite(testEngine(t), testDoc("http://example.com/"), []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	want := "<meta charset=\"iso-8859-1\"><p>caf\xe9</p>" +
		"<a href=\"http://replay.example.org/20010101000000/http://example.com/caf%C3%A9.html\">x</a>"
	if string(out) != want {
		t.Errorf("output\n  got  %q\n  want %q", out, want)
	}
}

func TestHTMLRewriterContentTypeCharset(t *testing.T) {
	doc := testDoc("http://example.com/")
	doc.ContentType = "text/html; charset=windows-1252"
	src := "<p>\x93quoted\x94</p>"
	out, _, err := HTMLRewriter{}.Rewrite(testEngine(t), doc, []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != src {
		t.Errorf("text changed in round trip: %q", out)
	}
}

func TestHTMLRewriterBadDocumentURL(t *testing.T) {
	_, _, err := HTMLRewriter{}.Rewrite(testEngine(t), testDoc("http://[::1"), []byte("<p>"))
	if err == nil {
		t.Error("expected error for unparsable document URL")
	}
}

func TestCSSRewriter(t *testing.T) {
	src := `@import "print.css"; .a { background: url('../img/a.png') }`
	out, stats, err := CSSRewriter{}.Rewrite(testEngine(t), testDoc("http://example.com/css/site.css"), []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	want := `@import "http://replay.example.org/20010101000000cs_/http://example.com/css/print.css"; ` +
		`.a { background: url('http://replay.example.org/20010101000000im_/http://example.com/img/a.png') }`
	if string(out) != want {
		t.Errorf("output\n  got  %s\n  want %s", out, want)
	}
	if stats.Rewritten != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCSSRewriterCharsetRule(t *testing.T) {
	src := "@charset \"iso-8859-1\";\n.caf\xe9 { background: url(a.png) }"
	out, _, err := CSSRewriter{}.Rewrite(testEngine(t), testDoc("http://example.com/"), []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	want := "@charset \"iso-8859-1\";\n.caf\xe9 { background: url(http://replay.example.org/20010101000000im_/http://example.com/a.png) }"
	if string(out) != want {
		t.Errorf("output\n  got  %q\n  want %q", out, want)
	}
}

func TestCSSRewriterUnknownCharset(t *testing.T) {
	src := `@charset "x-no-such-charset"; a{}`
	_, _, err := CSSRewriter{}.Rewrite(testEngine(t), testDoc("http://example.com/"), []byte(src))
	if !errors.Is(err, htmllex.ErrEncoding) {
		t.Errorf("expected ErrEncoding, got %v", err)
	}
}
