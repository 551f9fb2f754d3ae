package proof

import (
	"context"
	"crypto/hmac"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// MAC verifies proofs as keyed BLAKE2b-256 tags over the ciphertext. The key
// is shared with whatever produced the ciphertexts for this deployment.
type MAC struct {
	key []byte
}

// NewMAC builds a MAC verifier. Key length is bounded by BLAKE2b (64 bytes).
func NewMAC(key []byte) (*MAC, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("mac verifier requires a non-empty key")
	}
	// Validate the key eagerly so misconfiguration fails at startup.
	if _, err := blake2b.New256(key); err != nil {
		return nil, fmt.Errorf("mac verifier key: %w", err)
	}
	return &MAC{key: key}, nil
}

func (m *MAC) Verify(_ context.Context, ciphertext, proof []byte) (bool, error) {
	h, err := blake2b.New256(m.key)
	if err != nil {
		return false, fmt.Errorf("mac init: %w", err)
	}
	h.Write(ciphertext)
	return hmac.Equal(h.Sum(nil), proof), nil
}
