package credentials

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// SessionCodeLength is the number of characters in a join code
const SessionCodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateSessionCode generates a random uppercase alphanumeric join code
func GenerateSessionCode() (string, error) {
	code := make([]byte, SessionCodeLength)

	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[num.Int64()]
	}

	return string(code), nil
}

// NormalizeCode trims whitespace and uppercases a typed code so that
// "ab12cd" and "AB12CD" address the same session
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code, after normalization, has the join code shape
func ValidCode(code string) bool {
	code = NormalizeCode(code)
	if len(code) != SessionCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
