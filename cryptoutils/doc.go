// Package cryptoutils provides the small set of cryptographic helpers used by
// the policy session manager:
//
//   - RandomName and RandomSecret generate namespace names and 256-bit OTP
//     secrets (base32, no padding).
//   - TOTPCode computes the code an authenticator derives from a secret.
//   - EncryptWithPublicKey / DecryptWithPrivateKey implement ECIES over P-256
//     (ECDH, SHA-256 key derivation, AES-GCM) for archived session documents,
//     which embed the OTP secret in clear text.
package cryptoutils
