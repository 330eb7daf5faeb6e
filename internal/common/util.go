package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes read from
// crypto/rand, so the resulting string is twice as long.
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewTokenValue returns a fresh opaque token value with TokenValueBytes of
// entropy.
func NewTokenValue() (string, error) {
	return MakeRandHexString(TokenValueBytes)
}
