package link

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet excludes visually ambiguous characters (i, l, 1, L, o, 0, O).
const codeAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the length of a generated share code.
const CodeLength = 8

// maxCodeAttempts bounds collision retries during link creation.
const maxCodeAttempts = 10

// CodeFunc produces a random share code of the given length. The registry's
// default draws from crypto/rand; tests substitute deterministic sources.
type CodeFunc func(length int) (string, error)

// RandomCode returns a random code over the ambiguity-free alphabet.
func RandomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
