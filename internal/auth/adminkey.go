package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminKey verifies the bearer key of admin endpoints against either a
// plain key or a bcrypt hash of it. The hash wins when both are set.
type AdminKey struct {
	plain []byte
	hash  []byte
}

func NewAdminKey(plain, hash string) (*AdminKey, error) {
	plain = strings.TrimSpace(plain)
	hash = strings.TrimSpace(hash)
	if plain == "" && hash == "" {
		return nil, errors.New("admin api key is not configured")
	}
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, errors.New("admin api key hash is not a bcrypt hash")
		}
	}
	return &AdminKey{plain: []byte(plain), hash: []byte(hash)}, nil
}

// Verify reports whether presented is the admin key. The plain comparison
// runs in constant time.
func (k *AdminKey) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	if len(k.hash) > 0 {
		return bcrypt.CompareHashAndPassword(k.hash, []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(presented), k.plain) == 1
}
