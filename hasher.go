package auth

import (
	"strings"
)

const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// MultiHasher hashes new passwords with the preferred algorithm and verifies
// stored hashes with whichever algorithm produced them, so changing the
// configured algorithm keeps existing accounts working.
type MultiHasher struct {
	preferred PasswordHasher
	bcrypt    PasswordHasher
	argon2id  PasswordHasher
}

// NewPasswordHasher builds the hasher named by algorithm, defaulting to bcrypt.
func NewPasswordHasher(algorithm string, bcryptCost int) *MultiHasher {
	h := &MultiHasher{
		bcrypt:   NewBcryptHasher(bcryptCost),
		argon2id: NewArgon2idHasher(),
	}

	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case HasherArgon2id:
		h.preferred = h.argon2id
	default:
		h.preferred = h.bcrypt
	}

	return h
}

func (h *MultiHasher) Hash(password string) (string, error) {
	return h.preferred.Hash(password)
}

func (h *MultiHasher) Verify(password, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, argon2Prefix):
		return h.argon2id.Verify(password, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return h.bcrypt.Verify(password, hash)
	default:
		return false, ErrUnsupportedHash
	}
}

// newDummyHash returns the hash verified against when a login names an
// unknown email, so the response time does not reveal whether the account
// exists. It is computed up front so no login pays for it.
func newDummyHash(hasher PasswordHasher) string {
	hash, err := hasher.Hash("trialbridge-dummy-password")
	if err != nil {
		return ""
	}
	return hash
}
