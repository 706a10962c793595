package rewrite

import (
	"errors"
	"fmt"
)

var ErrInvalidSelector = errors.New("invalid rewrite rule selector")
var ErrConflictingRule = errors.New("conflicting rewrite rule")
var ErrUnresolvable = errors.New("unresolvable reference")
var ErrParseComplete = errors.New("parse already complete")

// ConfigError is returned while building an Engine or RuleSet from a bad
// rule declaration. It is never produced during rewriting.
type ConfigError struct {
	Selector string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rewrite config: %q: %v", e.Selector, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
