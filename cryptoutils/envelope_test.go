package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func generateKeyPair(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privateKeyBytes})

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyBytes})
	return privPEM, pubPEM
}

func TestEncryptionDecryption(t *testing.T) {
	privateKeyPEM, publicKeyPEM := generateKeyPair(t)

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "policy document", data: []byte("name: ns/otpqr-x\nversion: \"0.3\"\n")},
		{name: "binary data", data: []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD}},
		{name: "empty data", data: []byte{}},
		{name: "long data", data: make([]byte, 4096)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := EncryptWithPublicKey(publicKeyPEM, tc.data)
			require.NoError(t, err)
			require.Greater(t, len(encrypted), len(tc.data))

			decrypted, err := DecryptWithPrivateKey(privateKeyPEM, encrypted)
			require.NoError(t, err)
			require.Equal(t, len(tc.data), len(decrypted))
			if len(tc.data) > 0 {
				require.Equal(t, tc.data, decrypted)
			}
		})
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	_, publicKeyPEM := generateKeyPair(t)
	otherPrivPEM, _ := generateKeyPair(t)

	encrypted, err := EncryptWithPublicKey(publicKeyPEM, []byte("secret"))
	require.NoError(t, err)

	_, err = DecryptWithPrivateKey(otherPrivPEM, encrypted)
	require.Error(t, err)
}

func TestDecryptMalformed(t *testing.T) {
	privPEM, _ := generateKeyPair(t)

	_, err := DecryptWithPrivateKey(privPEM, []byte{0x01})
	require.Error(t, err)

	_, err = DecryptWithPrivateKey(privPEM, []byte{0x00, 0x41, 0x01, 0x02})
	require.Error(t, err)

	_, err = EncryptWithPublicKey([]byte("not a pem"), []byte("x"))
	require.Error(t, err)
}
