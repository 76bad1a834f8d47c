// utils/codes.go
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

// codeAlphabet skips 0/O and 1/I so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomCode returns an upper-case alphanumeric code of length n.
func RandomCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// RandomToken returns nBytes of crypto randomness, hex encoded.
func RandomToken(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
