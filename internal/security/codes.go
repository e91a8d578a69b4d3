package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// NewVerificationToken returns an opaque 256-bit token for pairing a client with a pending account.
func NewVerificationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewConfirmationCode returns a uniformly random 6-digit code in [100000, 999999].
func NewConfirmationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
