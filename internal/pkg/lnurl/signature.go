package lnurl

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	k1Len  = 32
	sigLen = 64
	keyLen = 33
)

// Challenge is a decoded verification request.
type Challenge struct {
	K1  []byte
	Sig []byte
	Key []byte
}

// ParseChallenge decodes the hex fields of an auth callback. On failure it
// returns the reason code for the first malformed field.
func ParseChallenge(k1Hex, sigHex, keyHex string) (*Challenge, string) {
	k1, ok := decodeHex(k1Hex, k1Len)
	if !ok {
		return nil, ReasonInvalidK1
	}
	sig, ok := decodeHex(sigHex, sigLen)
	if !ok {
		return nil, ReasonInvalidSig
	}
	key, ok := decodeHex(keyHex, keyLen)
	if !ok {
		return nil, ReasonInvalidKey
	}
	return &Challenge{K1: k1, Sig: sig, Key: key}, ""
}

// VerifySignature checks a 64-byte compact (r||s) secp256k1 signature of the
// raw 32-byte message against a compressed public key.
func VerifySignature(message, sig, compressedKey []byte) bool {
	if len(message) != k1Len || len(sig) != sigLen {
		return false
	}
	pub, err := secp256k1.ParsePubKey(compressedKey)
	if err != nil {
		return false
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow || s.IsZero() {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(message, pub)
}

func decodeHex(s string, size int) ([]byte, bool) {
	if len(s) != size*2 {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}
