package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// selectorPattern matches TAG[ATTR=value].TARGET.type with an optional
// predicate. The predicate value may be quoted and may contain dots.
var selectorPattern = regexp.MustCompile(
	`^([A-Za-z][A-Za-z0-9:_-]*|\*)(?:\[\s*([A-Za-z][A-Za-z0-9:_.-]*)\s*=\s*("[^"]*"|'[^']*'|[^\]]*?)\s*\])?\.([A-Za-z][A-Za-z0-9:_.-]*?)\.(?i:type)$`)

// ParseRule parses one rule line of the form
//
//	TAG[ATTR=value].TARGETATTR.type = kind
//
// where kind is one of an, im, cs, js, if, or css to route the attribute
// through the CSS rewriter. TAG may be "*" to match any element.
func ParseRule(line string) (Rule, error) {
	key, kind, ok := cutAssignment(line)
	if !ok {
		return Rule{}, &ConfigError{Selector: line, Err: fmt.Errorf("%w: missing \"= kind\"", ErrInvalidSelector)}
	}
	return ParseRuleProperty(key, kind)
}

// ParseRuleProperty parses a rule given as a properties-style key and value,
// e.g. ("A[ROLE=logo.download].HREF.type", "im").
func ParseRuleProperty(key, kind string) (Rule, error) {
	key = strings.TrimSpace(key)
	m := selectorPattern.FindStringSubmatch(key)
	if m == nil {
		return Rule{}, &ConfigError{Selector: key, Err: ErrInvalidSelector}
	}

	r := Rule{
		Tag:      strings.ToLower(m[1]),
		Target:   strings.ToLower(m[4]),
		selector: key,
	}
	if m[2] != "" {
		r.Predicate = &Predicate{
			Attr:  strings.ToLower(m[2]),
			Value: unquote(m[3]),
		}
	}

	code := strings.ToLower(strings.TrimSpace(kind))
	if code == "css" {
		r.Action = ActionCSS
	} else {
		k, err := ParseKind(code)
		if err != nil {
			return Rule{}, &ConfigError{Selector: key, Err: fmt.Errorf("%w: %v", ErrInvalidSelector, err)}
		}
		r.Kind = k
	}
	r.specificity = specificityOf(r)
	return r, nil
}

// ParseRules parses rule lines in order. Blank lines and lines starting
// with '#' or '!' are skipped.
func ParseRules(lines []string) ([]Rule, error) {
	var rules []Rule
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
			continue
		}
		r, err := ParseRule(trimmed)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// cutAssignment splits at the last '=' that is outside a [...] predicate.
func cutAssignment(line string) (string, string, bool) {
	depth := 0
	at := -1
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '=':
			if depth == 0 {
				at = i
			}
		}
	}
	if at < 0 {
		return "", "", false
	}
	return line[:at], line[at+1:], true
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
