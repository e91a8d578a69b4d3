package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
)

// Hash8 is a short stable fingerprint of s, used to correlate log lines
// about the same address without writing the address itself.
func Hash8(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return hex.EncodeToString(sum[:8])
}

func EmailField(email string) zap.Field { return zap.String("email_h", Hash8(email)) }
