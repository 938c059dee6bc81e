// Package encoding converts raw mail header lines to UTF-8 text.
package encoding

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// HeaderDecoder turns the raw bytes of one header line into a string.
// Implementations MUST be safe for concurrent use.
type HeaderDecoder interface {
	// DecodeLine returns the line as text. It never fails: bytes that cannot
	// be converted are returned unchanged.
	DecodeLine(line []byte) string
	// Name returns the canonical name of the fallback charset, or "" for passthrough.
	Name() string
}

// passthroughDecoder keeps bytes as they are.
type passthroughDecoder struct{}

func (passthroughDecoder) DecodeLine(line []byte) string { return string(line) }
func (passthroughDecoder) Name() string                  { return "" }

// charsetDecoder decodes lines that are not valid UTF-8 with a fallback charset.
type charsetDecoder struct {
	enc  xencoding.Encoding
	name string
}

// NewHeaderDecoder returns a decoder for the given charset label (any label
// known to golang.org/x/net/html/charset, e.g. "windows-1252", "latin1").
// An empty label returns a passthrough decoder. Unknown labels are an error.
func NewHeaderDecoder(label string) (HeaderDecoder, error) {
	if label == "" {
		return passthroughDecoder{}, nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, fmt.Errorf("unknown header charset '%s'", label)
	}
	return &charsetDecoder{enc: enc, name: name}, nil
}

// DecodeLine implements HeaderDecoder. Valid UTF-8 input is returned as is.
func (d *charsetDecoder) DecodeLine(line []byte) string {
	if utf8.Valid(line) {
		return string(line)
	}
	// Decoders are stateful, so each call gets its own.
	out, _, err := transform.Bytes(d.enc.NewDecoder(), line)
	if err != nil {
		return string(line)
	}
	return string(out)
}

// Name implements HeaderDecoder.
func (d *charsetDecoder) Name() string { return d.name }
