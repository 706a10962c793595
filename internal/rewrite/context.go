package rewrite

import (
	"bufio"
	"io"
	"net/url"
)

// ContentState is the walker's current content context.
type ContentState int

const (
	StateHTML ContentState = iota
	StateStyle
	StateScript
)

func (s ContentState) String() string {
	switch s {
	case StateStyle:
		return "style"
	case StateScript:
		return "script"
	}
	return "html"
}

// Stats counts what happened to one document.
type Stats struct {
	Rewritten  int `json:"rewritten"`
	Unresolved int `json:"unresolved"`
	Suppressed int `json:"suppressed"`
}

// ParseContext is the mutable state of one document rewrite. It is owned
// by a single goroutine and must not be reused across documents.
type ParseContext struct {
	base      *url.URL
	prefix    string
	timestamp string
	state     ContentState

	out      *bufio.Writer
	complete bool
	stats    Stats
}

// NewParseContext returns a context writing to w. base is the document URL
// that relative references resolve against until a <base> overrides it.
func NewParseContext(w io.Writer, base *url.URL, prefix, timestamp string) *ParseContext {
	return &ParseContext{
		base:      base,
		prefix:    prefix,
		timestamp: timestamp,
		out:       bufio.NewWriter(w),
	}
}

// Base returns the current base URL.
func (c *ParseContext) Base() *url.URL { return c.base }

// SetBase overwrites the current base URL.
func (c *ParseContext) SetBase(u *url.URL) { c.base = u }

func (c *ParseContext) Prefix() string    { return c.prefix }
func (c *ParseContext) Timestamp() string { return c.timestamp }

// State returns the current content context.
func (c *ParseContext) State() ContentState { return c.state }

// Stats returns the counters collected so far.
func (c *ParseContext) Stats() Stats { return c.stats }

// Complete reports whether parsing has been completed.
func (c *ParseContext) Complete() bool { return c.complete }

// Resolve resolves ref against the current base.
func (c *ParseContext) Resolve(ref string) (*url.URL, error) {
	return Resolve(c.base, ref)
}

// ContextualizeURL resolves ref and formats it as a replay URL of the
// given kind.
func (c *ParseContext) ContextualizeURL(ref string, kind ResourceKind) (string, error) {
	u, err := c.Resolve(ref)
	if err != nil {
		return "", err
	}
	return FormatReplayURL(c.prefix, c.timestamp, u, kind), nil
}

func (c *ParseContext) writeString(s string) error {
	_, err := c.out.WriteString(s)
	return err
}
