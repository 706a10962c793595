package htmllex

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// ErrEncoding reports input or output bytes that do not agree with the
// document's character set. It is fatal for the document being rewritten.
var ErrEncoding = errors.New("character encoding error")

// lookup resolves a charset label. A nil encoding means UTF-8, which
// needs no transcoding.
func lookup(label string) (encoding.Encoding, string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, "utf-8", nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, "", fmt.Errorf("%w: unknown charset %q", ErrEncoding, label)
	}
	if name == "utf-8" {
		return nil, name, nil
	}
	return enc, name, nil
}

// DetectCharset returns the canonical charset name for a document, looking
// at a BOM, the content type and <meta> declarations in the first bytes.
func DetectCharset(firstBytes []byte, contentType string) string {
	_, name, _ := charset.DetermineEncoding(firstBytes, contentType)
	return name
}

// NewDecodingReader returns a reader yielding UTF-8 decoded from r
// according to label. Read errors from the decoder wrap ErrEncoding.
func NewDecodingReader(r io.Reader, label string) (io.Reader, error) {
	enc, _, err := lookup(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return &encodingErrReader{r: enc.NewDecoder().Reader(r)}, nil
}

// NewEncodingWriter returns a writer that encodes UTF-8 written to it into
// label before passing it on to w. Close must be called to flush it; it
// does not close w.
func NewEncodingWriter(w io.Writer, label string) (io.WriteCloser, error) {
	enc, _, err := lookup(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nopCloser{w}, nil
	}
	return &encodingErrWriter{w: transform.NewWriter(w, enc.NewEncoder())}, nil
}

type encodingErrReader struct {
	r io.Reader
}

func (e *encodingErrReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return n, err
}

type encodingErrWriter struct {
	w io.WriteCloser
}

func (e *encodingErrWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return n, err
}

func (e *encodingErrWriter) Close() error {
	if err := e.w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
