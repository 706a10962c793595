package wayback

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	sanitize "github.com/mrz1836/go-sanitize"
)

// URLToLocalPath returns the forward-slash path, relative to the mirror
// root, under which wayback-dl stored rawURL. The fragment never takes
// part. Unparsable URLs map to "unknown".
//
// Raw layout (pretty == false) keeps the URL's escaped path, encodes only
// characters file systems reject, and appends the query to the file name
// after an encoded '?'. Directory URLs become index.html.
//
// Pretty layout turns extension-less names into directories holding
// index.html, reduces segments to [A-Za-z0-9_-] and folds the query into
// the file name before its extension (bg.png?v=1 -> bg_v_1.png).
func URLToLocalPath(rawURL string, pretty bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	if pretty {
		return prettyLocalPath(u)
	}
	return rawLocalPath(u)
}

func isDirURL(u *url.URL) bool {
	return u.Path == "" || strings.HasSuffix(u.Path, "/")
}

func rawLocalPath(u *url.URL) string {
	segs := pathSegments(u.EscapedPath(), encodeForFS)
	name := "index.html"
	if !isDirURL(u) && len(segs) > 0 {
		name = segs[len(segs)-1]
		segs = segs[:len(segs)-1]
	}
	if u.RawQuery != "" {
		name += "%3F" + encodeForFS(u.RawQuery)
	}
	return strings.Join(append(segs, name), "/")
}

func prettyLocalPath(u *url.URL) string {
	segs := pathSegments(u.Path, sanitizeSegment)
	suffix := querySuffix(u.RawQuery)
	name := "index" + suffix + ".html"
	if !isDirURL(u) && len(segs) > 0 {
		last := segs[len(segs)-1]
		if ext := path.Ext(last); ext != "" {
			segs = segs[:len(segs)-1]
			name = strings.TrimSuffix(last, ext) + suffix + ext
		}
	}
	return strings.Join(append(segs, name), "/")
}

// pathSegments splits p on '/', cleans every segment and drops the empty
// ones.
func pathSegments(p string, clean func(string) string) []string {
	var segs []string
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg == "" {
			continue
		}
		if s := clean(seg); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// fsUnsafe lists the bytes Windows forbids in file names, besides control
// characters.
const fsUnsafe = `\:*?"<>|`

func encodeForFS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || strings.IndexByte(fsUnsafe, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// sanitizeSegment cleans one pretty-layout segment. PathName drops dots,
// so the extension is cleaned on its own and re-attached.
func sanitizeSegment(seg string) string {
	ext := path.Ext(seg)
	stem := sanitize.PathName(strings.TrimSuffix(seg, ext))
	if ext == "" {
		return stem
	}
	if stem == "" {
		stem = "file"
	}
	if e := sanitize.PathName(ext[1:]); e != "" {
		return stem + "." + e
	}
	return stem
}

var querySeparators = strings.NewReplacer("=", "_", "&", "_")

// querySuffix turns a raw query into "_key_value", or "" when nothing
// survives sanitizing.
func querySuffix(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	q, err := url.QueryUnescape(rawQuery)
	if err != nil {
		q = rawQuery
	}
	if s := sanitize.PathName(querySeparators.Replace(q)); s != "" {
		return "_" + s
	}
	return ""
}
