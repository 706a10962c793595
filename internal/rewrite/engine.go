package rewrite

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/sigman78/wayback-rewrite/internal/htmllex"
)

// Options configures an Engine. The zero value rewrites with the default
// rules, decodes attribute entities and logs nothing.
type Options struct {
	// Rules are override lines of the form TAG[ATTR=value].TARGET.type = kind.
	Rules []string

	// DefaultRulesDisabled drops the built-in rules.
	DefaultRulesDisabled bool

	// DisableUnescape passes attribute text through without decoding or
	// re-encoding character references.
	DisableUnescape bool

	// CaseSensitiveValues compares rule predicate values exactly.
	CaseSensitiveValues bool

	// ScriptBlock, when set, receives each script src (decoded, before
	// resolution) and each inline script body. None suppresses it.
	ScriptBlock Transformer

	// ScriptURL receives javascript: attribute values. Defaults to
	// DefaultScriptTransformer.
	ScriptURL Transformer

	// Logger receives debug lines for references left unrewritten. Nil
	// discards them.
	Logger *zerolog.Logger
}

// Engine rewrites documents. It is immutable after NewEngine and may be
// shared by any number of concurrent rewrites, each with its own
// ParseContext.
type Engine struct {
	rules       *RuleSet
	codec       EntityCodec
	scriptBlock Transformer
	scriptURL   Transformer
	logger      zerolog.Logger
}

// NewEngine validates the options and builds the rule set.
func NewEngine(opts Options) (*Engine, error) {
	overrides, err := ParseRules(opts.Rules)
	if err != nil {
		return nil, err
	}
	rules, err := NewRuleSet(RuleSetOptions{
		Overrides:            overrides,
		DefaultRulesDisabled: opts.DefaultRulesDisabled,
		CaseSensitiveValues:  opts.CaseSensitiveValues,
	})
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "rewrite").Logger()
	}
	e := &Engine{
		rules:       rules,
		codec:       EntityCodec{Disabled: opts.DisableUnescape},
		scriptBlock: opts.ScriptBlock,
		scriptURL:   opts.ScriptURL,
		logger:      logger,
	}
	if e.scriptURL == nil {
		e.scriptURL = DefaultScriptTransformer
	}
	return e, nil
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() *RuleSet {
	return e.rules
}

// NodeSource is a pull-based stream of parsed nodes. Next returns io.EOF
// after the last node.
type NodeSource interface {
	Next() (*htmllex.Node, error)
}

// Rewrite consumes src to the end, rewriting every node into ctx, and
// completes the parse. Output written before a source error is flushed.
func (e *Engine) Rewrite(ctx *ParseContext, src NodeSource) error {
	for {
		n, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ferr := e.HandleParseComplete(ctx); ferr != nil {
				return errors.Join(err, ferr)
			}
			return err
		}
		if err := e.HandleNode(ctx, n); err != nil {
			return err
		}
	}
	return e.HandleParseComplete(ctx)
}

// RewriteHTML tokenizes UTF-8 HTML from r and rewrites it into ctx.
func (e *Engine) RewriteHTML(ctx *ParseContext, r io.Reader) error {
	return e.Rewrite(ctx, htmllex.NewTokenizer(r))
}

// RewriteStylesheet rewrites a standalone CSS document from r into ctx.
func (e *Engine) RewriteStylesheet(ctx *ParseContext, r io.Reader) error {
	if ctx.complete {
		return ErrParseComplete
	}
	css, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read stylesheet: %w", err)
	}
	if err := ctx.writeString(e.rewriteCSS(ctx, string(css))); err != nil {
		return fmt.Errorf("write stylesheet: %w", err)
	}
	return e.HandleParseComplete(ctx)
}

// contextualize resolves ref and formats a replay URL. An unresolvable
// reference is counted, logged and reported as !ok.
func (e *Engine) contextualize(ctx *ParseContext, ref string, kind ResourceKind) (string, bool) {
	out, err := ctx.ContextualizeURL(ref, kind)
	if err != nil {
		ctx.stats.Unresolved++
		ev := e.logger.Debug().Err(err).Str("ref", ref)
		if ctx.base != nil {
			ev = ev.Str("base", ctx.base.String())
		}
		ev.Msg("reference left as is")
		return "", false
	}
	ctx.stats.Rewritten++
	return out, true
}
