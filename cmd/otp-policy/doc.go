// Package main (cmd/otp-policy) manages a SCONE CAS namespace with two OTP
// protected sessions sharing an encrypted volume.
//
// The primary session (<namespace>/otpqr-x) generates the QR code of the OTP
// secret. The secondary session (<namespace>/otpqr-reset) adds further
// authenticators and only runs when given a current OTP. All session hashes,
// the volume version and the secret are kept in a state record in the working
// directory.
//
// Example usage:
//
//	otp-policy create
//	otp-policy gen-qr-code
//	otp-policy add-authenticator --otp 123456
//	otp-policy roll-forward --force
package main
