package rewrite

import (
	"fmt"
	"strings"

	"github.com/sigman78/wayback-rewrite/internal/htmllex"
)

// Action selects how a matched attribute value is rewritten.
type Action int

const (
	// ActionURL resolves the value as a single URL and formats a replay URL.
	ActionURL Action = iota
	// ActionCSS hands the value to the CSS rewriter.
	ActionCSS
)

// Predicate restricts a rule to elements carrying Attr=Value.
type Predicate struct {
	Attr  string
	Value string
}

// Rule is one attribute rewrite directive. Rules are values and are never
// modified once they are part of a RuleSet.
type Rule struct {
	Tag       string // lower-case tag name or "*"
	Predicate *Predicate
	Target    string // lower-case attribute to rewrite
	Action    Action
	Kind      ResourceKind

	selector    string
	specificity int
	seq         int
}

// Selector returns the selector text the rule was declared with.
func (r Rule) Selector() string {
	if r.selector != "" {
		return r.selector
	}
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Tag))
	if r.Predicate != nil {
		fmt.Fprintf(&b, "[%s=%s]", strings.ToUpper(r.Predicate.Attr), r.Predicate.Value)
	}
	b.WriteString(".")
	b.WriteString(strings.ToUpper(r.Target))
	b.WriteString(".type")
	return b.String()
}

// Specificity ranks the rule: 2 with a predicate, 1 for a plain tag, 0 for
// the "*" wildcard.
func (r Rule) Specificity() int {
	return r.specificity
}

func specificityOf(r Rule) int {
	switch {
	case r.Predicate != nil:
		return 2
	case r.Tag == "*":
		return 0
	default:
		return 1
	}
}

func (r Rule) sameSelector(o Rule) bool {
	if r.Tag != o.Tag || r.Target != o.Target {
		return false
	}
	if (r.Predicate == nil) != (o.Predicate == nil) {
		return false
	}
	return r.Predicate == nil ||
		(r.Predicate.Attr == o.Predicate.Attr && strings.EqualFold(r.Predicate.Value, o.Predicate.Value))
}

// outranks reports whether r beats o for the same target attribute.
func (r Rule) outranks(o Rule) bool {
	if r.specificity != o.specificity {
		return r.specificity > o.specificity
	}
	return r.seq > o.seq
}

func urlRule(tag, target string, kind ResourceKind) Rule {
	r := Rule{Tag: tag, Target: target, Kind: kind}
	r.specificity = specificityOf(r)
	return r
}

func predicateRule(tag, attr, value, target string, kind ResourceKind) Rule {
	r := Rule{Tag: tag, Target: target, Kind: kind, Predicate: &Predicate{Attr: attr, Value: value}}
	r.specificity = specificityOf(r)
	return r
}

// DefaultRules returns the built-in rule set in declaration order.
func DefaultRules() []Rule {
	rules := []Rule{
		urlRule("a", "href", KindPage),
		urlRule("area", "href", KindPage),
		urlRule("base", "href", KindPage),
		urlRule("form", "action", KindPage),
		urlRule("img", "src", KindImage),
		urlRule("input", "src", KindImage),
		urlRule("body", "background", KindImage),
		urlRule("table", "background", KindImage),
		urlRule("tr", "background", KindImage),
		urlRule("td", "background", KindImage),
		urlRule("th", "background", KindImage),
		// icons and other link relations are served as images
		urlRule("link", "href", KindImage),
		predicateRule("link", "rel", "stylesheet", "href", KindStylesheet),
		urlRule("script", "src", KindScript),
		urlRule("iframe", "src", KindIframe),
		urlRule("frame", "src", KindIframe),
	}
	style := Rule{Tag: "*", Target: "style", Action: ActionCSS}
	style.specificity = specificityOf(style)
	return append(rules, style)
}

// RuleSet maps tag names to candidate rules. It is immutable once built and
// safe for concurrent use.
type RuleSet struct {
	byTag    map[string][]Rule
	wildcard []Rule
	foldVals bool
	size     int
}

// RuleSetOptions configures NewRuleSet.
type RuleSetOptions struct {
	// Overrides are caller rules, evaluated after the defaults.
	Overrides []Rule
	// DefaultRulesDisabled leaves only Overrides in effect.
	DefaultRulesDisabled bool
	// CaseSensitiveValues makes predicate values compare exactly.
	CaseSensitiveValues bool
}

// NewRuleSet builds a RuleSet. Two overrides with the same selector but a
// different kind or action are a configuration error.
func NewRuleSet(opts RuleSetOptions) (*RuleSet, error) {
	rs := &RuleSet{
		byTag:    make(map[string][]Rule),
		foldVals: !opts.CaseSensitiveValues,
	}
	var all []Rule
	if !opts.DefaultRulesDisabled {
		all = append(all, DefaultRules()...)
	}

	for i, r := range opts.Overrides {
		for _, prev := range opts.Overrides[:i] {
			if prev.sameSelector(r) && (prev.Kind != r.Kind || prev.Action != r.Action) {
				return nil, &ConfigError{
					Selector: r.Selector(),
					Err:      fmt.Errorf("%w: already declared as %s", ErrConflictingRule, prev.describe()),
				}
			}
		}
		all = append(all, r)
	}

	for i, r := range all {
		if r.Tag == "" || r.Target == "" {
			return nil, &ConfigError{Selector: r.Selector(), Err: ErrInvalidSelector}
		}
		r.Tag = strings.ToLower(r.Tag)
		r.Target = strings.ToLower(r.Target)
		if r.Predicate != nil {
			p := *r.Predicate
			p.Attr = strings.ToLower(p.Attr)
			r.Predicate = &p
		}
		r.specificity = specificityOf(r)
		r.seq = i
		if r.Tag == "*" {
			rs.wildcard = append(rs.wildcard, r)
		} else {
			rs.byTag[r.Tag] = append(rs.byTag[r.Tag], r)
		}
	}
	rs.size = len(all)
	return rs, nil
}

func (r Rule) describe() string {
	if r.Action == ActionCSS {
		return "css"
	}
	return r.Kind.String()
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return rs.size
}

// Match is one attribute selected for rewriting.
type Match struct {
	Index int // position in the element's attribute list
	Rule  Rule
}

// Match returns, in attribute order, the attributes of an element that
// should be rewritten and the rule that won for each. decode is applied to
// attribute values before comparing them with predicate values.
func (rs *RuleSet) Match(tag string, attrs []htmllex.Attr, decode func(string) string) []Match {
	tag = strings.ToLower(tag)
	candidates := rs.byTag[tag]
	if len(candidates) == 0 && len(rs.wildcard) == 0 {
		return nil
	}

	var best map[string]Rule
	consider := func(r Rule) {
		if !hasAttr(attrs, r.Target) || !rs.predicateHolds(r.Predicate, attrs, decode) {
			return
		}
		if best == nil {
			best = make(map[string]Rule, 2)
		}
		if cur, ok := best[r.Target]; !ok || r.outranks(cur) {
			best[r.Target] = r
		}
	}
	for _, r := range candidates {
		consider(r)
	}
	for _, r := range rs.wildcard {
		consider(r)
	}
	if best == nil {
		return nil
	}

	matches := make([]Match, 0, len(best))
	for i, a := range attrs {
		r, ok := best[a.Key]
		if !ok {
			continue
		}
		matches = append(matches, Match{Index: i, Rule: r})
		// only the first occurrence of a duplicated attribute is rewritten
		delete(best, a.Key)
	}
	return matches
}

func (rs *RuleSet) predicateHolds(p *Predicate, attrs []htmllex.Attr, decode func(string) string) bool {
	if p == nil {
		return true
	}
	for _, a := range attrs {
		if a.Key != p.Attr {
			continue
		}
		v := a.Val
		if decode != nil {
			v = decode(v)
		}
		v = strings.TrimSpace(v)
		if rs.foldVals {
			return strings.EqualFold(v, p.Value)
		}
		return v == p.Value
	}
	return false
}

func hasAttr(attrs []htmllex.Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}
