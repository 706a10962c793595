package wayback

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// CDXEntry holds one CDX result row.
type CDXEntry struct {
	Timestamp   string
	OriginalURL string
}

// ParseCDX reads a CDX JSON index as returned by the Wayback CDX API with
// output=json: an array of arrays whose first row is the field header.
// The timestamp and original columns are located by name, so extra
// columns (statuscode, digest, ...) are tolerated.
func ParseCDX(r io.Reader) ([]CDXEntry, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cdx read: %w", err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, nil
	}

	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("cdx json decode: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	tsCol, urlCol := 0, 1
	for i, name := range rows[0] {
		switch name {
		case "timestamp":
			tsCol = i
		case "original":
			urlCol = i
		}
	}

	var entries []CDXEntry
	for _, row := range rows[1:] {
		if len(row) <= tsCol || len(row) <= urlCol {
			continue
		}
		entries = append(entries, CDXEntry{
			Timestamp:   row[tsCol],
			OriginalURL: row[urlCol],
		})
	}
	return entries, nil
}

// LoadCDXFile reads a CDX JSON index from disk.
func LoadCDXFile(path string) ([]CDXEntry, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("cdx open: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseCDX(f)
}
