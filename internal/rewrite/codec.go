package rewrite

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// charRefPattern matches semicolon-terminated character references only.
// A bare "&" or an unterminated "&amp" is left as literal text.
var charRefPattern = regexp.MustCompile(`&(#[0-9]+|#[xX][0-9a-fA-F]+|[A-Za-z][A-Za-z0-9]*);`)

// EntityCodec decodes attribute values on read and re-encodes them on write.
// A zero EntityCodec decodes; set Disabled to pass values through as is.
type EntityCodec struct {
	Disabled bool
}

// Decode resolves character references in v exactly once.
func (c EntityCodec) Decode(v string) string {
	if c.Disabled || !strings.Contains(v, "&") {
		return v
	}
	return charRefPattern.ReplaceAllStringFunc(v, html.UnescapeString)
}

// Encode escapes v for output inside an attribute quoted with quote (0 for
// unquoted). Only '&' and the quote character itself are escaped.
func (c EntityCodec) Encode(v string, quote byte) string {
	if c.Disabled {
		return v
	}
	if !strings.ContainsAny(v, "&\"'") {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 8)
	for i := 0; i < len(v); i++ {
		switch ch := v[i]; {
		case ch == '&':
			b.WriteString("&amp;")
		case ch == '"' && quote == '"':
			b.WriteString("&#34;")
		case ch == '\'' && quote == '\'':
			b.WriteString("&#39;")
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
