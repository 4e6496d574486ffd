package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// HashParams tunes the argon2id password hash. Supplied by configuration at
// startup; both admission (create/update) and verification must use the same
// parameters, so the store owning the hashes owns a single copy.
type HashParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// DefaultHashParams matches the argon2id settings used elsewhere in the
// deployment tooling.
var DefaultHashParams = HashParams{
	Memory:      64 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
}

func (p HashParams) normalized() HashParams {
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 || p.KeyLength == 0 {
		return DefaultHashParams
	}
	return p
}

// HashPassword derives a deterministic one-way hash keyed by the user id as
// salt. Determinism lets the store compare stored and supplied credentials
// without a random per-record salt; keying by user id keeps identical
// passwords from hashing identically across users.
func HashPassword(p HashParams, userID, password string) string {
	p = p.normalized()
	salt := sha256.Sum256([]byte("keygate-pw-salt:" + userID))
	key := argon2.IDKey([]byte(password), salt[:16], p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s",
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// VerifyPassword recomputes the hash for the supplied password and compares
// in constant time.
func VerifyPassword(p HashParams, userID, password, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	computed := HashPassword(p, userID, password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
