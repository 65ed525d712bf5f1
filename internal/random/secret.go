// Package random provides cryptographic random value helpers.
//
// It uses crypto/rand so session secrets stay unpredictable even though
// they only guard a reconnect decoupling step.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// Secret bounds for the 6-digit session secret.
const (
	SecretMin = 100000
	SecretMax = 999999
)

// NewSecret generates a session secret in [SecretMin, SecretMax].
func NewSecret() (int, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random secret: %w", err)
	}

	span := uint64(SecretMax - SecretMin + 1)
	return SecretMin + int(binary.LittleEndian.Uint64(b[:])%span), nil
}
