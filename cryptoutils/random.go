package cryptoutils

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"math/big"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SecretSize is the size in bytes of a freshly generated OTP secret.
const SecretSize = 32

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RandomName returns n uniformly chosen alphanumeric characters.
func RandomName(n int) (string, error) {
	max := big.NewInt(int64(len(nameAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random name: %w", err)
		}
		out[i] = nameAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// RandomSecret returns a random 256-bit secret, base32 encoded without padding.
func RandomSecret() (string, error) {
	var secret [SecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return secretEncoding.EncodeToString(secret[:]), nil
}

// DecodeSecret returns the raw bytes of a secret produced by RandomSecret.
func DecodeSecret(secret string) ([]byte, error) {
	return secretEncoding.DecodeString(secret)
}
