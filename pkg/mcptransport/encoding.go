package mcptransport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DecodeErrorPolicy selects what happens to bytes the server emits that are
// not valid in the configured text encoding.
type DecodeErrorPolicy string

const (
	// DecodeStrict fails the read, which ends the session.
	DecodeStrict DecodeErrorPolicy = "strict"
	// DecodeIgnore drops the offending bytes.
	DecodeIgnore DecodeErrorPolicy = "ignore"
	// DecodeReplace substitutes U+FFFD for the offending bytes.
	DecodeReplace DecodeErrorPolicy = "replace"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "utf-8"

// ErrInvalidText is returned by strict readers on undecodable input.
var ErrInvalidText = errors.New("mcptransport: invalid text in server output")

// TextCodec converts between the wire encoding of a process pipe and the
// UTF-8 JSON handled by the SDK.
type TextCodec struct {
	name   string
	enc    encoding.Encoding
	policy DecodeErrorPolicy
}

// NewTextCodec resolves an encoding label (WHATWG names and common aliases
// such as "latin1" or "utf-16le") and a decode policy. Empty values select
// utf-8 and DecodeStrict.
func NewTextCodec(label string, policy DecodeErrorPolicy) (*TextCodec, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultEncoding
	}
	if policy == "" {
		policy = DecodeStrict
	}
	switch policy {
	case DecodeStrict, DecodeIgnore, DecodeReplace:
	default:
		return nil, fmt.Errorf("mcptransport: unknown decode error policy %q", policy)
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("mcptransport: unknown encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(label)
	}
	return &TextCodec{name: name, enc: enc, policy: policy}, nil
}

// Name returns the canonical encoding name.
func (c *TextCodec) Name() string { return c.name }

// Policy returns the decode error policy.
func (c *TextCodec) Policy() DecodeErrorPolicy { return c.policy }

func (c *TextCodec) isUTF8() bool { return c.name == "utf-8" }

// Decoder returns the transformer applied to server output.
func (c *TextCodec) Decoder() transform.Transformer {
	if c.isUTF8() {
		switch c.policy {
		case DecodeReplace:
			return c.enc.NewDecoder()
		case DecodeIgnore:
			return transform.Chain(c.enc.NewDecoder(), dropReplacement())
		default:
			return encoding.UTF8Validator
		}
	}
	switch c.policy {
	case DecodeReplace:
		return c.enc.NewDecoder()
	case DecodeIgnore:
		return transform.Chain(c.enc.NewDecoder(), dropReplacement())
	default:
		return transform.Chain(c.enc.NewDecoder(), rejectReplacement{})
	}
}

// Encoder returns the transformer applied to client input, or nil when the
// pipe already speaks UTF-8.
func (c *TextCodec) Encoder() transform.Transformer {
	if c.isUTF8() {
		return nil
	}
	if c.policy == DecodeStrict {
		return c.enc.NewEncoder()
	}
	return encoding.ReplaceUnsupported(c.enc.NewEncoder())
}

// WrapReader decodes r into UTF-8. Closing the result closes r.
func (c *TextCodec) WrapReader(r io.ReadCloser) io.ReadCloser {
	return readCloser{Reader: transform.NewReader(r, c.Decoder()), Closer: r}
}

// WrapWriter encodes UTF-8 written to the result into w. Closing the result
// flushes pending output and closes w.
func (c *TextCodec) WrapWriter(w io.WriteCloser) io.WriteCloser {
	t := c.Encoder()
	if t == nil {
		return w
	}
	return &writeCloser{w: transform.NewWriter(w, t), dst: w}
}

type readCloser struct {
	io.Reader
	io.Closer
}

type writeCloser struct {
	w   *transform.Writer
	dst io.Closer
}

func (w *writeCloser) Write(p []byte) (int, error) { return w.w.Write(p) }

func (w *writeCloser) Close() error {
	return errors.Join(w.w.Close(), w.dst.Close())
}

func dropReplacement() transform.Transformer {
	return runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError }))
}

// rejectReplacement fails on U+FFFD, which x/text decoders emit for bytes
// that have no mapping.
type rejectReplacement struct{ transform.NopResetter }

func (rejectReplacement) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError {
			return nDst, nSrc, ErrInvalidText
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		copy(dst[nDst:], src[nSrc:nSrc+size])
		nDst += size
		nSrc += size
	}
	return nDst, nSrc, nil
}
