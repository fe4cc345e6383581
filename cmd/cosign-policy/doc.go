// Package main (cmd/cosign-policy) manages the sessions of an attested cosign.
// The signing key pair lives in a volume of the admin session and is only
// usable through the remote session, which is protected by an OTP.
//
// Policy templates are read from <prefix>_namespace.yml, <prefix>_admin.yml
// and <prefix>_remote.yml in the working directory. gen-policies writes the
// defaults.
//
// Example usage:
//
//	cosign-policy gen-policies
//	cosign-policy create
//	cosign-policy gen-qr-code
//	cosign-policy gen-keypair --otp 123456
//	cosign-policy sign-image --image registry.example.com/app:1.0
package main
