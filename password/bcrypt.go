package password

import (
	"golang.org/x/crypto/bcrypt"
)

// MaxBcryptBytes is the longest input bcrypt considers. Longer passwords are
// truncated before hashing and before verification so they keep working.
const MaxBcryptBytes = 72

// BcryptConfig holds the configuration for bcrypt hashing.
type BcryptConfig struct {
	// Cost is the bcrypt cost factor (4-31).
	// Higher values are more secure but slower.
	Cost int
}

// DefaultBcryptConfig returns the default bcrypt parameters.
func DefaultBcryptConfig() *BcryptConfig {
	return &BcryptConfig{
		Cost: 12,
	}
}

// BcryptHasher implements Hasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher. A nil config selects
// DefaultBcryptConfig; the cost is clamped to the range bcrypt accepts.
func NewBcryptHasher(config *BcryptConfig) *BcryptHasher {
	if config == nil {
		config = DefaultBcryptConfig()
	}
	cost := config.Cost
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the effective cost factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash creates a bcrypt hash from the first MaxBcryptBytes of password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(truncate(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify checks password against a bcrypt hash.
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncate(password)) == nil
}

// NeedsRehash reports whether hash uses a different cost or is not bcrypt.
func (h *BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.cost
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > MaxBcryptBytes {
		b = b[:MaxBcryptBytes]
	}
	return b
}

var _ Hasher = (*BcryptHasher)(nil)
