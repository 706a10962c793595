package rewrite

import (
	"regexp"
	"strings"
)

// cssURLPattern finds url(...) in its three quoting forms, optionally as
// the target of @import, and @import with a bare quoted string. Only the
// captured URL text is ever replaced.
var cssURLPattern = regexp.MustCompile(
	`(?i)(@import\s+)?url\(\s*(?:"([^"]*)"|'([^']*)'|([^)"'\s]*))\s*\)` +
		`|@import\s+(?:"([^"]*)"|'([^']*)')`)

// rewriteCSS rewrites every url() target as an image and every @import
// target as a stylesheet. Text outside the URL literals is copied as is.
func (e *Engine) rewriteCSS(ctx *ParseContext, css string) string {
	matches := cssURLPattern.FindAllStringSubmatchIndex(css, -1)
	if len(matches) == 0 {
		return css
	}

	var b strings.Builder
	b.Grow(len(css) + len(matches)*(len(ctx.prefix)+len(ctx.timestamp)+8))
	last := 0
	for _, m := range matches {
		kind := KindImage
		if m[2] >= 0 || m[10] >= 0 || m[12] >= 0 {
			kind = KindStylesheet
		}
		start, end := -1, -1
		for g := 2; g <= 6; g++ {
			if m[2*g] >= 0 {
				start, end = m[2*g], m[2*g+1]
				break
			}
		}
		if start < 0 {
			continue
		}
		ref := css[start:end]
		if skipCSSRef(ref) {
			continue
		}
		replayed, ok := e.contextualize(ctx, ref, kind)
		if !ok {
			continue
		}
		b.WriteString(css[last:start])
		b.WriteString(replayed)
		last = end
	}
	if last == 0 {
		return css
	}
	b.WriteString(css[last:])
	return b.String()
}

func skipCSSRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == "" || hasPrefixFold(ref, "data:") || hasPrefixFold(ref, "about:")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
