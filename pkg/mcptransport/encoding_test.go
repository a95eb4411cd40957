package mcptransport

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/transform"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func decodeAll(t *testing.T, codec *TextCodec, input string) (string, error) {
	t.Helper()
	out, err := io.ReadAll(codec.WrapReader(io.NopCloser(strings.NewReader(input))))
	return string(out), err
}

func TestNewTextCodecDefaults(t *testing.T) {
	t.Parallel()

	codec, err := NewTextCodec("", "")
	require.NoError(t, err)
	assert.Equal(t, "utf-8", codec.Name())
	assert.Equal(t, DecodeStrict, codec.Policy())
	assert.Nil(t, codec.Encoder())

	codec, err = NewTextCodec("UTF8", DecodeReplace)
	require.NoError(t, err)
	assert.Equal(t, "utf-8", codec.Name())

	_, err = NewTextCodec("no-such-charset", DecodeStrict)
	assert.Error(t, err)
	_, err = NewTextCodec("utf-8", "lenient")
	assert.Error(t, err)
}

func TestUTF8DecodePolicies(t *testing.T) {
	t.Parallel()

	input := "{\"a\":\"x\xffy\"}\n"

	strict, err := NewTextCodec("utf-8", DecodeStrict)
	require.NoError(t, err)
	_, err = decodeAll(t, strict, input)
	assert.Error(t, err)

	valid, err := decodeAll(t, strict, "{\"a\":\"héllo\"}\n")
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"héllo\"}\n", valid)

	replace, err := NewTextCodec("utf-8", DecodeReplace)
	require.NoError(t, err)
	got, err := decodeAll(t, replace, input)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"x�y\"}\n", got)

	ignore, err := NewTextCodec("utf-8", DecodeIgnore)
	require.NoError(t, err)
	got, err = decodeAll(t, ignore, input)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"xy\"}\n", got)
}

func TestLatin1RoundTrip(t *testing.T) {
	t.Parallel()

	codec, err := NewTextCodec("latin1", DecodeStrict)
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", codec.Name())

	got, err := decodeAll(t, codec, "caf\xe9\n")
	require.NoError(t, err)
	assert.Equal(t, "café\n", got)

	var buf bytes.Buffer
	w := codec.WrapWriter(nopWriteCloser{&buf})
	_, err = w.Write([]byte("café\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "caf\xe9\n", buf.String())
}

func TestEncodeUnsupportedRunes(t *testing.T) {
	t.Parallel()

	strict, err := NewTextCodec("latin1", DecodeStrict)
	require.NoError(t, err)
	_, _, err = transform.String(strict.Encoder(), "日本")
	assert.Error(t, err)

	lenient, err := NewTextCodec("latin1", DecodeReplace)
	require.NoError(t, err)
	out, _, err := transform.String(lenient.Encoder(), "a日")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "a"))
	assert.NotContains(t, out, "日")
}

func TestRejectReplacement(t *testing.T) {
	t.Parallel()

	out, _, err := transform.String(rejectReplacement{}, "plain ascii é")
	require.NoError(t, err)
	assert.Equal(t, "plain ascii é", out)

	_, _, err = transform.String(rejectReplacement{}, "bad � byte")
	assert.ErrorIs(t, err, ErrInvalidText)
}
