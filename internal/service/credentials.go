package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	credentialAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%"
	credentialLength   = 18
)

// generateCredential produces a root password for a new container.
func generateCredential() (string, error) {
	out := make([]byte, credentialLength)
	max := big.NewInt(int64(len(credentialAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = credentialAlphabet[n.Int64()]
	}
	return string(out), nil
}
