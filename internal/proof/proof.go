// Package proof defines the vault's boundary to the external crypto
// capability. The engine never decrypts or inspects plaintext; it only asks
// whether a ciphertext is well-formed and its validity proof checks out.
package proof

import "context"

// Verifier validates a ciphertext/proof pair. Implementations must be
// side-effect-free predicates; the engine calls them synchronously before any
// of its own checks run.
type Verifier interface {
	Verify(ctx context.Context, ciphertext, proof []byte) (bool, error)
}

// Static is a fixed-outcome verifier for development wiring and tests.
type Static struct {
	Allow bool
}

func (s Static) Verify(context.Context, []byte, []byte) (bool, error) {
	return s.Allow, nil
}
