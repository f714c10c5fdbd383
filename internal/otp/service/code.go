package service

import (
	"crypto/rand"
	"fmt"
)

// CodeSource produces numeric verification codes of a fixed length.
type CodeSource interface {
	Code(length int) (string, error)
}

// CryptoCodeSource draws digits from crypto/rand. Bytes at or above 250 are redrawn so
// every digit is equally likely.
type CryptoCodeSource struct{}

func (CryptoCodeSource) Code(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("otp: invalid code length %d", length)
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("otp: read random: %w", err)
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// CodeSourceFunc adapts a function to CodeSource.
type CodeSourceFunc func(length int) (string, error)

func (f CodeSourceFunc) Code(length int) (string, error) { return f(length) }
