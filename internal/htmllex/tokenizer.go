package htmllex

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Tokenizer turns a decoded HTML byte stream into a lazy sequence of
// Nodes. It is consumed once, front to back.
//
// Raw text elements (script, style, textarea, ...) are handled by the
// underlying x/net/html tokenizer: their whole body arrives as a single
// text node.
type Tokenizer struct {
	z *html.Tokenizer
}

// NewTokenizer returns a Tokenizer reading UTF-8 HTML from r.
func NewTokenizer(r io.Reader) *Tokenizer {
	return &Tokenizer{z: html.NewTokenizer(r)}
}

// Next returns the next node, or io.EOF once the input is exhausted.
func (t *Tokenizer) Next() (*Node, error) {
	tt := t.z.Next()
	if tt == html.ErrorToken {
		err := t.z.Err()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	// Raw must be copied before TagName, which lower-cases in place.
	raw := append([]byte(nil), t.z.Raw()...)

	switch tt {
	case html.StartTagToken, html.SelfClosingTagToken:
		name, _ := t.z.TagName()
		n := &Node{
			Type:        StartTagNode,
			Tag:         string(name),
			Atom:        atom.Lookup(name),
			SelfClosing: tt == html.SelfClosingTagToken,
			raw:         raw,
		}
		n.head, n.Attrs, n.tail = splitTag(raw)
		return n, nil
	case html.EndTagToken:
		name, _ := t.z.TagName()
		return &Node{
			Type: EndTagNode,
			Tag:  string(name),
			Atom: atom.Lookup(name),
			raw:  raw,
		}, nil
	case html.CommentToken:
		return &Node{Type: CommentNode, raw: raw}, nil
	case html.DoctypeToken:
		return &Node{Type: DoctypeNode, raw: raw}, nil
	default:
		return &Node{Type: TextNode, raw: raw}, nil
	}
}
