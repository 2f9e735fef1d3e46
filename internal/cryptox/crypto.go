// Package cryptox holds the password-derivation primitives used by worker
// login. The server never sees a password: the device derives a key with
// argon2id from (password, salt) and sends only a SHA-256 verifier of it.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

const (
	// SaltSize is the length of a freshly generated login salt.
	SaltSize = 32
	keySize  = 32
)

// DeriveKey stretches password with salt using argon2id.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, keySize)
}

// MakeVerifier returns the value stored server-side (and cached on the
// device for offline login) for a derived key.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// VerifierFor combines DeriveKey and MakeVerifier.
func VerifierFor(password []byte, salt []byte) []byte {
	return MakeVerifier(DeriveKey(password, salt))
}

// EqualVerifiers compares two verifiers in constant time.
func EqualVerifiers(a, b []byte) bool {
	return len(a) > 0 && subtle.ConstantTimeCompare(a, b) == 1
}
