package cryptoutils

import (
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

// TOTPCode returns the RFC 6238 code an authenticator app shows for secret at t.
func TOTPCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCode(secret, t)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return code, nil
}
