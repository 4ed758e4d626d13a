// Package lnurl implements the LNURL-auth and LNURL-withdraw session machines
// together with the bech32 encoding wallets scan.
package lnurl

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const hrp = "lnurl"

// ErrInvalidLnurl is returned when a string is not a bech32 lnurl.
var ErrInvalidLnurl = errors.New("invalid lnurl")

// Encode bech32-encodes rawURL with the "lnurl" prefix, uppercased for QR codes.
func Encode(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidLnurl)
	}
	data, err := bech32.ConvertBits([]byte(rawURL), 8, 5, true)
	if err != nil {
		return "", err
	}
	encoded, err := bech32.Encode(hrp, data)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(encoded), nil
}

// Decode reverses Encode. Input case is ignored.
func Decode(lnurl string) (string, error) {
	prefix, data, err := bech32.DecodeNoLimit(strings.ToLower(strings.TrimSpace(lnurl)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLnurl, err)
	}
	if prefix != hrp {
		return "", fmt.Errorf("%w: unexpected prefix %q", ErrInvalidLnurl, prefix)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLnurl, err)
	}
	return string(raw), nil
}

// BuildAuthURL appends tag=login and k1 to callback.
func BuildAuthURL(callback, k1 string) (string, error) {
	return withQuery(callback, url.Values{"tag": {"login"}, "k1": {k1}})
}

func withQuery(base string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("url has no host")
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewK1 returns 32 random bytes as lowercase hex.
func NewK1() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// keyPrefix shortens secrets for logs.
func keyPrefix(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
