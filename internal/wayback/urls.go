package wayback

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizedBase holds the canonical form of a document base URL.
type NormalizedBase struct {
	CanonicalURL string // scheme://ascii-host[:port]/path[?query]
	BareHost     string // ASCII hostname without www.
	UnicodeHost  string // IDN-decoded hostname
}

// NormalizeBaseURL parses a user-supplied URL or bare domain. A missing
// scheme defaults to http, the scheme archived pages were usually captured
// with. Internationalised hosts are converted to their ASCII form so
// resolved references carry a valid host.
func NormalizeBaseURL(input string) (*NormalizedBase, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("empty URL")
	}
	if !strings.Contains(input, "://") {
		input = "http://" + input
	}

	u, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	host, err := idna.Lookup.ToASCII(u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("host %q: %w", u.Hostname(), err)
	}
	host = strings.ToLower(host)

	nb := &NormalizedBase{BareHost: strings.TrimPrefix(host, "www.")}
	nb.UnicodeHost = nb.BareHost
	if decoded, err := idna.ToUnicode(nb.BareHost); err == nil {
		nb.UnicodeHost = decoded
	}

	if port := u.Port(); port != "" {
		host += ":" + port
	}
	canonical := url.URL{Scheme: scheme, Host: host, Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery}
	if canonical.Path == "" {
		canonical.Path = "/"
	}
	nb.CanonicalURL = canonical.String()
	return nb, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// IsHTMLFile reports whether a resource is HTML, judged by content type,
// then extension, then a leading '<' after an optional BOM.
func IsHTMLFile(filePath, contentType string, firstBytes []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	switch strings.ToLower(path.Ext(filePath)) {
	case ".html", ".htm":
		return true
	}
	b := bytes.TrimSpace(bytes.TrimPrefix(firstBytes, utf8BOM))
	return len(b) > 0 && b[0] == '<'
}

// IsCSSResource reports whether a resource is a stylesheet.
func IsCSSResource(filePath, contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/css") ||
		strings.EqualFold(path.Ext(filePath), ".css")
}
