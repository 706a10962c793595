package wayback

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"

	"github.com/sigman78/wayback-rewrite/internal/htmllex"
	"github.com/sigman78/wayback-rewrite/internal/rewrite"
)

// Document describes one archived resource handed to a Rewriter.
type Document struct {
	URL         string // original URL, the initial base for relative references
	Timestamp   string // capture timestamp written into replay URLs
	Prefix      string // replay service prefix
	ContentType string // optional, used for charset detection
}

// Rewriter rewrites the content of one archived resource.
type Rewriter interface {
	Rewrite(e *rewrite.Engine, doc Document, src []byte) ([]byte, rewrite.Stats, error)
}

// DetectRewriter returns the Rewriter appropriate for the given resource,
// or nil when no rewriting is needed.
// Detection order mirrors the existing inline checks:
//
//	Content-Type -> file extension -> magic bytes (HTML only).
func DetectRewriter(logicalPath, contentType string, firstBytes []byte) Rewriter {
	if IsCSSResource(logicalPath, contentType) {
		return CSSRewriter{}
	}
	if IsHTMLFile(logicalPath, contentType, firstBytes) {
		return HTMLRewriter{}
	}
	return nil
}

func newContext(w io.Writer, doc Document) (*rewrite.ParseContext, error) {
	base, err := url.Parse(doc.URL)
	if err != nil {
		return nil, fmt.Errorf("document url: %w", err)
	}
	return rewrite.NewParseContext(w, base, doc.Prefix, doc.Timestamp), nil
}

// HTMLRewriter rewrites an HTML page. The page is decoded from its
// detected charset and written back in the same charset.
type HTMLRewriter struct{}

func (HTMLRewriter) Rewrite(e *rewrite.Engine, doc Document, src []byte) ([]byte, rewrite.Stats, error) {
	label := htmllex.DetectCharset(src, doc.ContentType)
	return transcode(label, src, doc, func(ctx *rewrite.ParseContext, in *bytes.Reader) error {
		r, err := htmllex.NewDecodingReader(in, label)
		if err != nil {
			return err
		}
		return e.RewriteHTML(ctx, r)
	})
}

// charsetRule matches a leading @charset declaration.
var charsetRule = regexp.MustCompile(`^\x{FEFF}?@charset\s+"([^"]+)"\s*;`)

// CSSRewriter rewrites a standalone stylesheet. The charset comes from a
// leading @charset rule and defaults to UTF-8.
type CSSRewriter struct{}

func (CSSRewriter) Rewrite(e *rewrite.Engine, doc Document, src []byte) ([]byte, rewrite.Stats, error) {
	label := "utf-8"
	if m := charsetRule.FindSubmatch(src); m != nil {
		label = string(m[1])
	}
	return transcode(label, src, doc, func(ctx *rewrite.ParseContext, in *bytes.Reader) error {
		r, err := htmllex.NewDecodingReader(in, label)
		if err != nil {
			return err
		}
		return e.RewriteStylesheet(ctx, r)
	})
}

// transcode runs fn with a context whose output is encoded back into label.
func transcode(label string, src []byte, doc Document,
	fn func(ctx *rewrite.ParseContext, in *bytes.Reader) error) ([]byte, rewrite.Stats, error) {
	var out bytes.Buffer
	enc, err := htmllex.NewEncodingWriter(&out, label)
	if err != nil {
		return nil, rewrite.Stats{}, err
	}
	ctx, err := newContext(enc, doc)
	if err != nil {
		return nil, rewrite.Stats{}, err
	}
	if err := fn(ctx, bytes.NewReader(src)); err != nil {
		return nil, ctx.Stats(), err
	}
	if err := enc.Close(); err != nil {
		return nil, ctx.Stats(), err
	}
	return out.Bytes(), ctx.Stats(), nil
}
