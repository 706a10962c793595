package htmllex

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html/atom"
)

// NodeType classifies a Node.
type NodeType int

const (
	TextNode NodeType = iota
	CommentNode
	DoctypeNode
	StartTagNode
	EndTagNode
)

func (t NodeType) String() string {
	switch t {
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	case DoctypeNode:
		return "doctype"
	case StartTagNode:
		return "start-tag"
	case EndTagNode:
		return "end-tag"
	}
	return "unknown"
}

// Attr is one attribute of a start tag.
//
// Val holds the text between the quotes exactly as it appeared in the
// markup; character references are NOT decoded. Unmodified attributes are
// re-emitted from their raw bytes, so casing, spacing and quoting survive.
type Attr struct {
	Key    string // lower-cased attribute name
	Val    string // raw value text, entities intact
	Quote  byte   // '"', '\'' or 0 for unquoted / valueless
	HasVal bool

	raw    []byte // leading whitespace + name [+ "=" + quoted value]
	prefix []byte // raw bytes up to the first byte of the value
	dirty  bool
}

// SetVal replaces the attribute value. v is written verbatim; callers are
// responsible for any escaping.
func (a *Attr) SetVal(v string) {
	a.Val = v
	a.HasVal = true
	a.dirty = true
}

// Modified reports whether SetVal was called.
func (a *Attr) Modified() bool {
	return a.dirty
}

func (a *Attr) writeTo(w io.Writer) error {
	if !a.dirty {
		_, err := w.Write(a.raw)
		return err
	}
	q := a.Quote
	if q == 0 && (a.prefix == nil || needsQuote(a.Val)) {
		q = '"'
	}
	var buf bytes.Buffer
	if a.prefix != nil {
		buf.Write(a.prefix)
	} else {
		// valueless attribute gaining a value
		buf.Write(a.raw)
		buf.WriteByte('=')
	}
	if q != 0 {
		buf.WriteByte(q)
	}
	buf.WriteString(a.Val)
	if q != 0 {
		buf.WriteByte(q)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func needsQuote(v string) bool {
	return v == "" || strings.ContainsAny(v, " \t\n\r\f\"'=<>`")
}

// Node is one classified unit of the token stream.
type Node struct {
	Type  NodeType
	Tag   string    // lower-cased tag name for start and end tags
	Atom  atom.Atom // zero when the tag name is not a known HTML atom
	Attrs []Attr

	// SelfClosing is set for start tags written as <tag ... />.
	SelfClosing bool

	raw  []byte
	head []byte // "<" + tag name as written
	tail []byte // trailing whitespace + ">" or "/>"
}

// Raw returns the bytes of the node as they appeared in the input.
func (n *Node) Raw() []byte {
	return n.raw
}

// Text returns the raw text of a text or comment node.
func (n *Node) Text() string {
	return string(n.raw)
}

// Attr returns the first attribute named key (lower-case).
func (n *Node) Attr(key string) (*Attr, bool) {
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			return &n.Attrs[i], true
		}
	}
	return nil, false
}

// Modified reports whether any attribute of the node was rewritten.
func (n *Node) Modified() bool {
	for i := range n.Attrs {
		if n.Attrs[i].dirty {
			return true
		}
	}
	return false
}

// Render writes the node. Untouched nodes are written byte for byte.
func (n *Node) Render(w io.Writer) error {
	if n.Type != StartTagNode || !n.Modified() {
		_, err := w.Write(n.raw)
		return err
	}
	if _, err := w.Write(n.head); err != nil {
		return err
	}
	for i := range n.Attrs {
		if err := n.Attrs[i].writeTo(w); err != nil {
			return err
		}
	}
	_, err := w.Write(n.tail)
	return err
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// splitTag cuts a raw start tag into its name, attributes and closing
// bytes. The scan follows the tokenizer's own attribute rules: '/' not
// followed by '>' separates attributes, and an attribute name may begin
// with '='. An unterminated quoted value makes the rest of the tag opaque.
func splitTag(raw []byte) (head []byte, attrs []Attr, tail []byte) {
	i := 1
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}
	head = raw[:i]
	for {
		start := i
		for i < len(raw) && (isSpace(raw[i]) || (raw[i] == '/' && !(i+1 < len(raw) && raw[i+1] == '>'))) {
			i++
		}
		if i >= len(raw) || raw[i] == '>' || raw[i] == '/' {
			return head, attrs, raw[start:]
		}

		nameStart := i
		i++
		for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && raw[i] != '=' {
			i++
		}
		a := Attr{Key: strings.ToLower(string(raw[nameStart:i]))}

		j := i
		for j < len(raw) && isSpace(raw[j]) {
			j++
		}
		if j < len(raw) && raw[j] == '=' {
			j++
			for j < len(raw) && isSpace(raw[j]) {
				j++
			}
			a.HasVal = true
			a.prefix = raw[start:j]
			if j < len(raw) && (raw[j] == '"' || raw[j] == '\'') {
				q := raw[j]
				k := bytes.IndexByte(raw[j+1:], q)
				if k < 0 {
					return head, attrs, raw[start:]
				}
				a.Quote = q
				a.Val = string(raw[j+1 : j+1+k])
				i = j + 1 + k + 1
			} else {
				k := j
				for k < len(raw) && !isSpace(raw[k]) && raw[k] != '>' {
					k++
				}
				a.Val = string(raw[j:k])
				i = k
			}
		}
		a.raw = raw[start:i]
		attrs = append(attrs, a)
	}
}
