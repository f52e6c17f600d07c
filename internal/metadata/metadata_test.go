package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTripsWellKnownMimes(t *testing.T) {
	raw := Encode(map[string][]byte{
		MimeApplication: []byte(`{"uuid":"x"}`),
		MimeBearerToken: []byte("token-bytes"),
	})

	cm, err := Parse(raw)
	require.NoError(t, err)

	app, ok := cm.Get(MimeApplication)
	require.True(t, ok)
	assert.Equal(t, `{"uuid":"x"}`, string(app))

	tok, ok := cm.Get(MimeBearerToken)
	require.True(t, ok)
	assert.Equal(t, "token-bytes", string(tok))

	assert.True(t, cm.Contains(MimeApplication))
	assert.False(t, cm.Contains("message/x.rsocket.routing.v0"))
}

func TestParse_EmptyInputYieldsEmptyMetadata(t *testing.T) {
	cm, err := Parse(nil)
	require.NoError(t, err)
	assert.False(t, cm.Contains(MimeApplication))
	_, ok := cm.Get(MimeApplication)
	assert.False(t, ok)
}

func TestParse_TruncatedMimeStringFails(t *testing.T) {
	// Claims a 6-byte mime string (length byte 5) but supplies none.
	raw := []byte{0x05}
	_, err := Parse(raw)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParse_TruncatedDataLengthFails(t *testing.T) {
	raw := []byte{0x00, 'x'} // one-byte mime "x", no 24-bit length follows
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParse_TruncatedEntryDataFails(t *testing.T) {
	raw := []byte{0x00, 'x', 0x00, 0x00, 0x05} // declares 5 bytes of payload, supplies none
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParse_UnknownWellKnownMimeIDFails(t *testing.T) {
	raw := []byte{0xFF, 0x00, 0x00, 0x00}
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestGet_NilCompositeMetadataIsSafe(t *testing.T) {
	var cm *CompositeMetadata
	assert.False(t, cm.Contains(MimeApplication))
	_, ok := cm.Get(MimeApplication)
	assert.False(t, ok)
}

func TestParseError_ErrorMessageIncludesMimeWhenSet(t *testing.T) {
	err := &ParseError{Mime: MimeApplication, Cause: assert.AnError}
	assert.Contains(t, err.Error(), MimeApplication)

	bare := &ParseError{Cause: assert.AnError}
	assert.NotContains(t, bare.Error(), "mime=")
}
