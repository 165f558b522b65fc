// Package csrf issues and checks double submit tokens bound to a session ID.
// A token is `<mac>.<nonce>`, both base64url encoded, where mac is the
// HMAC-SHA256 of the length prefixed session ID and nonce.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"strings"
)

// Header carries the token on mutating requests.
const Header = "X-CSRF-Token"

const nonceLength = 32

var encoding = base64.RawURLEncoding

// NewToken returns a fresh token for the session.
func NewToken(sessionID string, key []byte) string {
	nonce := make([]byte, nonceLength)
	_, _ = rand.Read(nonce)

	return encoding.EncodeToString(sign(sessionID, nonce, key)) + "." + encoding.EncodeToString(nonce)
}

// Validate reports whether token was issued for sessionID with key.
func Validate(token, sessionID string, key []byte) bool {
	macPart, noncePart, found := strings.Cut(token, ".")
	if !found || sessionID == "" {
		return false
	}

	mac, err := encoding.DecodeString(macPart)
	if err != nil {
		return false
	}

	nonce, err := encoding.DecodeString(noncePart)
	if err != nil || len(nonce) != nonceLength {
		return false
	}

	return hmac.Equal(mac, sign(sessionID, nonce, key))
}

func sign(sessionID string, nonce, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(binary.BigEndian.AppendUint32(nil, uint32(len(sessionID)))) //nolint:gosec
	h.Write([]byte(sessionID))
	h.Write(nonce)

	return h.Sum(nil)
}
