package rewrite

import (
	"regexp"
	"strings"
)

// Transformed is the result of a Transformer: either replacement text or
// nothing, meaning the content is suppressed.
type Transformed struct {
	text string
	ok   bool
}

// Some wraps replacement text.
func Some(text string) Transformed { return Transformed{text: text, ok: true} }

// None signals suppression.
func None() Transformed { return Transformed{} }

// Get returns the text and whether there is any.
func (t Transformed) Get() (string, bool) { return t.text, t.ok }

// Transformer rewrites script text or a script URL for one document.
type Transformer func(ctx *ParseContext, text string) Transformed

// embeddedURLPattern matches the scheme and host of an absolute URL inside
// script text, including the JSON-escaped "http:\/\/host" form.
var embeddedURLPattern = regexp.MustCompile(`(?i)https?:\\?/\\?/[a-z0-9:_@.-]+`)

// timestampPattern matches the tail of an already formatted replay URL:
// a timestamp, an optional modifier and the separating slash.
var timestampPattern = regexp.MustCompile(`[0-9]+(?:[a-z]{2}_)?/$`)

// RewriteEmbeddedURLs wraps the scheme and host of every absolute URL found
// in text as a page replay URL, leaving the rest of the text untouched.
func RewriteEmbeddedURLs(ctx *ParseContext, text string) string {
	matches := embeddedURLPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		raw := text[m[0]:m[1]]
		escaped := strings.Contains(raw, `\/`)
		plain := raw
		if escaped {
			plain = strings.ReplaceAll(raw, `\/`, "/")
		}
		if isReplayHost(ctx.prefix, plain) || wrappedBefore(ctx.prefix, text[:m[0]]) {
			continue
		}
		u, err := Resolve(nil, plain)
		if err != nil {
			continue
		}
		out := FormatReplayURL(ctx.prefix, ctx.timestamp, u, KindPage)
		if escaped {
			out = strings.ReplaceAll(out, "/", `\/`)
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(out)
		last = m[1]
		ctx.stats.Rewritten++
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// DefaultScriptTransformer rewrites embedded absolute URLs and never
// suppresses.
func DefaultScriptTransformer(ctx *ParseContext, text string) Transformed {
	return Some(RewriteEmbeddedURLs(ctx, text))
}

// isReplayHost reports whether plain is the scheme and host of the replay
// prefix itself.
func isReplayHost(prefix, plain string) bool {
	if prefix == "" {
		return false
	}
	return hasPrefixFold(prefix, plain) &&
		(len(prefix) == len(plain) || prefix[len(plain)] == '/')
}

// wrappedBefore reports whether before ends in prefix + timestamp +
// modifier + "/", meaning the URL that follows is already a replay target.
func wrappedBefore(prefix, before string) bool {
	if prefix == "" {
		return false
	}
	window := before
	if n := 2*len(prefix) + 64; len(window) > n {
		window = window[len(window)-n:]
	}
	window = strings.ReplaceAll(window, `\/`, "/")
	loc := timestampPattern.FindStringIndex(window)
	if loc == nil {
		return false
	}
	return strings.HasSuffix(window[:loc[0]], prefix)
}

func isJavascriptURL(v string) bool {
	return hasPrefixFold(strings.TrimSpace(v), "javascript:")
}
