package rewrite

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolve resolves ref against base using standard relative-reference
// rules. The result must be an absolute http or https URL with a host;
// anything else fails with ErrUnresolvable.
func Resolve(base *url.URL, ref string) (*url.URL, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrUnresolvable)
	}
	var (
		u   *url.URL
		err error
	)
	if base != nil {
		u, err = base.Parse(ref)
	} else {
		u, err = url.Parse(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q has no http(s) scheme", ErrUnresolvable, ref)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrUnresolvable, ref)
	}
	return u, nil
}

// FormatReplayURL builds prefix + timestamp + modifier + "/" + target.
// The target's encoded path and query are written as parsed, never
// re-escaped.
func FormatReplayURL(prefix, timestamp string, target *url.URL, kind ResourceKind) string {
	t := target.String()
	var b strings.Builder
	b.Grow(len(prefix) + len(timestamp) + 4 + len(t))
	b.WriteString(prefix)
	b.WriteString(timestamp)
	b.WriteString(kind.Modifier())
	b.WriteByte('/')
	b.WriteString(t)
	return b.String()
}
