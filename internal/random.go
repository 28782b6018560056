package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"
)

// NewNumericCode returns a cryptographically random numeric code of the
// given length. Used for developer bypass codes and tests; production codes
// come from the time-windowed derivation or the directory token provider.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// HashKeyParts derives a fixed-size cache key from the given parts. Parts
// are length-prefix separated so ("ab","c") and ("a","bc") never collide.
func HashKeyParts(parts ...string) [32]byte {
	h := sha256.New()
	var sep [1]byte
	for _, p := range parts {
		h.Write([]byte{byte(len(p)), byte(len(p) >> 8)})
		h.Write([]byte(p))
		h.Write(sep[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
