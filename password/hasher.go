// Package password hashes and verifies user passwords.
//
// Hashers are stateless and safe for concurrent use. Verify never reports an
// error: a malformed or foreign hash simply does not match.
package password

import (
	"errors"
	"fmt"
)

// Algorithm names a supported hashing scheme.
type Algorithm string

const (
	// Bcrypt is the default scheme. Inputs are truncated to MaxBcryptBytes.
	Bcrypt Algorithm = "bcrypt"

	// Argon2id is the memory-hard alternative. Inputs are not truncated.
	Argon2id Algorithm = "argon2id"
)

// ErrMalformedHash is returned when an encoded hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// ErrUnknownAlgorithm is returned by New for an unsupported scheme.
var ErrUnknownAlgorithm = errors.New("unknown password hashing algorithm")

// Hasher defines the interface for password hashing algorithms.
type Hasher interface {
	// Hash creates a salted hash from a password. Two calls with the same
	// input produce different outputs.
	Hash(password string) (string, error)

	// Verify reports whether password matches hash.
	Verify(password, hash string) bool

	// NeedsRehash reports whether hash was created with parameters that
	// differ from the hasher's current configuration.
	NeedsRehash(hash string) bool
}

// New returns the hasher for algorithm. cost is the bcrypt cost and is
// ignored for argon2id; zero selects the default.
func New(algorithm Algorithm, cost int) (Hasher, error) {
	switch algorithm {
	case "", Bcrypt:
		cfg := DefaultBcryptConfig()
		if cost != 0 {
			cfg.Cost = cost
		}
		return NewBcryptHasher(cfg), nil
	case Argon2id:
		return NewArgon2Hasher(nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
