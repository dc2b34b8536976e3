package invites

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aliuyar1234/holidaytree/internal/validation"
)

// GenerateCode draws a CodeLength code from the invite alphabet. The alphabet has 32 symbols,
// so reducing a random byte modulo 32 is unbiased.
func GenerateCode() (string, error) {
	return generateCode(rand.Reader)
}

func generateCode(r io.Reader) (string, error) {
	buf := make([]byte, validation.InviteCodeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	alphabet := validation.InviteAlphabet
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
