package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

const gcmNonceSize = 12

// EncryptWithPublicKey seals data for the holder of the private key matching
// publicKeyPEM (PKIX, P-256). A fresh ephemeral key is used per call.
//
// Format: [ephemeral key length (2 bytes)][ephemeral key][nonce (12 bytes)][ciphertext]
func EncryptWithPublicKey(publicKeyPEM []byte, data []byte) ([]byte, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	ecdsaKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}

	recipient, err := ecdsaKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported public key: %w", err)
	}

	ephemeral, err := recipient.Curve().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	aead, err := sharedAEAD(ephemeral, recipient)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ephemeralPub := ephemeral.PublicKey().Bytes()
	out := make([]byte, 2, 2+len(ephemeralPub)+gcmNonceSize+len(data)+aead.Overhead())
	binary.BigEndian.PutUint16(out, uint16(len(ephemeralPub)))
	out = append(out, ephemeralPub...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, nil), nil
}

// DecryptWithPrivateKey opens data produced by EncryptWithPublicKey using an
// EC private key in SEC1 PEM form.
func DecryptWithPrivateKey(privateKeyPEM []byte, encrypted []byte) ([]byte, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}

	ecdsaKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	priv, err := ecdsaKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported private key: %w", err)
	}

	if len(encrypted) < 2 {
		return nil, errors.New("encrypted data too short")
	}
	keyLen := int(binary.BigEndian.Uint16(encrypted[:2]))
	if len(encrypted) < 2+keyLen+gcmNonceSize {
		return nil, errors.New("encrypted data has invalid format")
	}

	ephemeral, err := priv.Curve().NewPublicKey(encrypted[2 : 2+keyLen])
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral public key: %w", err)
	}

	aead, err := sharedAEAD(priv, ephemeral)
	if err != nil {
		return nil, err
	}

	nonce := encrypted[2+keyLen : 2+keyLen+gcmNonceSize]
	plaintext, err := aead.Open(nil, nonce, encrypted[2+keyLen+gcmNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func sharedAEAD(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) (cipher.AEAD, error) {
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	key := sha256.Sum256(shared)

	blockCipher, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
