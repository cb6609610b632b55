package utils

import (
	"fmt"

	"github.com/sethvargo/go-password/password"
)

// DefaultPinLength is the length of generated profile PINs.
const DefaultPinLength = 6

// GeneratePin returns a random numeric PIN of the given length.
func GeneratePin(length int) (string, error) {
	if length <= 0 {
		length = DefaultPinLength
	}
	pin, err := password.Generate(length, length, 0, true, true)
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return pin, nil
}
