package wayback

import (
	"net/url"
	"sort"
	"strings"
)

// Snapshot is one archived document to rewrite.
type Snapshot struct {
	FileURL   string // original URL
	Timestamp string // CDX timestamp, used as the replay timestamp
	FileID    string // host + path + query (deduplication key)
}

// SnapshotIndex deduplicates CDX entries, keeping the latest capture of
// every URL, and answers timestamp lookups for URLs found in documents.
type SnapshotIndex struct {
	byPath         map[string]Snapshot // host+path → latest snapshot
	byPathAndQuery map[string]Snapshot // host+path+query → latest snapshot
	manifest       []Snapshot          // sorted newest-first (lazy)
	built          bool
}

// NewSnapshotIndex creates an empty index.
func NewSnapshotIndex() *SnapshotIndex {
	return &SnapshotIndex{
		byPath:         make(map[string]Snapshot),
		byPathAndQuery: make(map[string]Snapshot),
	}
}

// NewSnapshotIndexFromCDX registers every entry of a CDX index.
func NewSnapshotIndexFromCDX(entries []CDXEntry) *SnapshotIndex {
	idx := NewSnapshotIndex()
	for _, e := range entries {
		idx.Register(e.OriginalURL, e.Timestamp)
	}
	return idx
}

// snapshotKeys returns the path and path+query keys for rawURL. Hosts
// compare case-insensitively and with or without a leading "www.".
func snapshotKeys(rawURL string) (pathKey, queryKey string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	p := u.Path
	if p == "" {
		p = "/"
	}
	pathKey = host + p
	queryKey = pathKey
	if u.RawQuery != "" {
		queryKey += "?" + u.RawQuery
	}
	return pathKey, queryKey, true
}

// Register adds a CDX entry, keeping the lexicographically greatest
// timestamp per URL. Registering after GetManifest rebuilds the manifest
// on the next call.
func (idx *SnapshotIndex) Register(rawURL, timestamp string) {
	pathKey, queryKey, ok := snapshotKeys(rawURL)
	if !ok {
		return
	}

	snap := Snapshot{
		FileURL:   rawURL,
		Timestamp: timestamp,
		FileID:    queryKey,
	}
	if existing, ok := idx.byPathAndQuery[queryKey]; !ok || timestamp > existing.Timestamp {
		idx.byPathAndQuery[queryKey] = snap
	}
	if existing, ok := idx.byPath[pathKey]; !ok || timestamp > existing.Timestamp {
		idx.byPath[pathKey] = snap
	}
	idx.built = false
}

// GetManifest returns every unique snapshot, newest first.
func (idx *SnapshotIndex) GetManifest() []Snapshot {
	if idx.built {
		return idx.manifest
	}
	idx.manifest = idx.manifest[:0]
	for _, s := range idx.byPathAndQuery {
		idx.manifest = append(idx.manifest, s)
	}
	sort.Slice(idx.manifest, func(i, j int) bool {
		if idx.manifest[i].Timestamp != idx.manifest[j].Timestamp {
			return idx.manifest[i].Timestamp > idx.manifest[j].Timestamp
		}
		return idx.manifest[i].FileID < idx.manifest[j].FileID
	})
	idx.built = true
	return idx.manifest
}

// Resolve finds the capture timestamp for rawURL, checking path+query first
// and then the path alone. fallback is returned for unknown URLs.
func (idx *SnapshotIndex) Resolve(rawURL, fallback string) string {
	pathKey, queryKey, ok := snapshotKeys(rawURL)
	if !ok {
		return fallback
	}
	if s, ok := idx.byPathAndQuery[queryKey]; ok {
		return s.Timestamp
	}
	if s, ok := idx.byPath[pathKey]; ok {
		return s.Timestamp
	}
	return fallback
}

// Len returns the number of unique snapshots.
func (idx *SnapshotIndex) Len() int {
	return len(idx.byPathAndQuery)
}
