package rewrite

import (
	"fmt"
	"strings"

	"golang.org/x/net/html/atom"

	"github.com/sigman78/wayback-rewrite/internal/htmllex"
)

// HandleNode rewrites one node and writes it to the context's sink. Nodes
// must be handed over in document order.
func (e *Engine) HandleNode(ctx *ParseContext, n *htmllex.Node) error {
	if ctx.complete {
		return ErrParseComplete
	}

	switch ctx.state {
	case StateStyle:
		switch {
		case n.Type == htmllex.TextNode:
			return e.write(ctx, e.rewriteCSS(ctx, n.Text()))
		case n.Type == htmllex.EndTagNode && n.Atom == atom.Style:
			ctx.state = StateHTML
		}
	case StateScript:
		switch {
		case n.Type == htmllex.TextNode:
			return e.write(ctx, e.rewriteScript(ctx, n.Text()))
		case n.Type == htmllex.EndTagNode && n.Atom == atom.Script:
			ctx.state = StateHTML
		}
	default:
		if n.Type == htmllex.StartTagNode {
			e.handleStartTag(ctx, n)
		}
	}
	return e.render(ctx, n)
}

// HandleParseComplete flushes buffered output. Later calls do nothing.
func (e *Engine) HandleParseComplete(ctx *ParseContext) error {
	if ctx.complete {
		return nil
	}
	ctx.complete = true
	if err := ctx.out.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (e *Engine) handleStartTag(ctx *ParseContext, n *htmllex.Node) {
	var nextBase string
	if n.Atom == atom.Base {
		if href, ok := n.Attr("href"); ok {
			nextBase = e.codec.Decode(href.Val)
		}
	}
	if strings.TrimSpace(nextBase) != "" {
		// resolved against the base in effect before this element
		if u, err := ctx.Resolve(nextBase); err == nil {
			defer ctx.SetBase(u)
		} else {
			e.logger.Debug().Err(err).Str("href", nextBase).Msg("base element ignored")
		}
	}

	for _, m := range e.rules.Match(n.Tag, n.Attrs, e.codec.Decode) {
		e.rewriteAttr(ctx, n, &n.Attrs[m.Index], m.Rule)
	}

	switch n.Atom {
	case atom.Style:
		ctx.state = StateStyle
	case atom.Script:
		ctx.state = StateScript
	}
}

func (e *Engine) rewriteAttr(ctx *ParseContext, n *htmllex.Node, a *htmllex.Attr, r Rule) {
	value := e.codec.Decode(a.Val)
	if strings.TrimSpace(value) == "" {
		return
	}
	quote := a.Quote
	if quote == 0 {
		quote = '"'
	}

	switch {
	case r.Action == ActionCSS:
		if out := e.rewriteCSS(ctx, value); out != value {
			a.SetVal(e.codec.Encode(out, quote))
		}
		return

	case isJavascriptURL(value):
		out, ok := e.scriptURL(ctx, value).Get()
		if !ok {
			ctx.stats.Suppressed++
			a.SetVal("")
		} else if out != value {
			a.SetVal(e.codec.Encode(out, quote))
		}
		return

	case n.Atom == atom.Script && a.Key == "src" && e.scriptBlock != nil:
		out, ok := e.scriptBlock(ctx, value).Get()
		if !ok {
			ctx.stats.Suppressed++
			a.SetVal("")
			return
		}
		value = out
	}

	if replayed, ok := e.contextualize(ctx, value, r.Kind); ok {
		a.SetVal(e.codec.Encode(replayed, quote))
	}
}

func (e *Engine) rewriteScript(ctx *ParseContext, text string) string {
	if e.scriptBlock == nil {
		return RewriteEmbeddedURLs(ctx, text)
	}
	out, ok := e.scriptBlock(ctx, text).Get()
	if !ok {
		ctx.stats.Suppressed++
		return ""
	}
	return out
}

func (e *Engine) write(ctx *ParseContext, s string) error {
	if err := ctx.writeString(s); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (e *Engine) render(ctx *ParseContext, n *htmllex.Node) error {
	if err := n.Render(ctx.out); err != nil {
		return fmt.Errorf("write %s: %w", n.Type, err)
	}
	return nil
}
