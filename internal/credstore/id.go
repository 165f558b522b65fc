package credstore

import (
	"crypto/rand"
	"math/big"
)

const idLength = 43

// newID returns a random jar identifier.
// Entropy E = L * log2(63) = 43 * log2(63) = 257 bits.
func newID() string {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

	ret := make([]byte, idLength)
	for i := range idLength {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		ret[i] = letters[num.Int64()]
	}

	return string(ret)
}

// validID rejects identifiers that could not have been issued by newID.
func validID(id string) bool {
	if len(id) != idLength {
		return false
	}
	for i := range len(id) {
		c := id[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '-':
		default:
			return false
		}
	}

	return true
}
