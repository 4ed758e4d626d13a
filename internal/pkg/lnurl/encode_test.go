package lnurl

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := "https://pay.example.com/lnurl/auth/callback?tag=login&k1=" + strings.Repeat("ab", 32)

	encoded, err := Encode(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "LNURL1"))
	assert.Equal(t, strings.ToUpper(encoded), encoded)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)

	decoded, err = Decode(strings.ToLower(encoded))
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestEncodeRejectsEmpty(t *testing.T) {
	_, err := Encode("  ")
	assert.ErrorIs(t, err, ErrInvalidLnurl)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("not-an-lnurl")
	assert.ErrorIs(t, err, ErrInvalidLnurl)
}

func TestBuildAuthURL(t *testing.T) {
	k1 := strings.Repeat("0f", 32)
	raw, err := BuildAuthURL("https://pay.example.com/lnurl/auth/callback?foo=bar", k1)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "login", u.Query().Get("tag"))
	assert.Equal(t, k1, u.Query().Get("k1"))
	assert.Equal(t, "bar", u.Query().Get("foo"))

	_, err = BuildAuthURL("ftp://pay.example.com", k1)
	assert.Error(t, err)
	_, err = BuildAuthURL("https://", k1)
	assert.Error(t, err)
}

func TestNewK1(t *testing.T) {
	a, err := NewK1()
	require.NoError(t, err)
	b, err := NewK1()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	_, ok := decodeHex(a, k1Len)
	assert.True(t, ok)
}
