// Package crypto provides the password hashing primitive.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/locoplatform/api/internal/apperr"
)

// argon2id parameters for new hashes. Stored hashes carry their own
// parameters, so these can be raised without invalidating existing records.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword hashes plaintext with argon2id and a fresh random salt,
// returning the PHC encoded string.
func HashPassword(plain string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: generate salt: %v", apperr.ErrHashingFailed, err)
	}
	key := argon2.IDKey([]byte(plain), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// VerifyPassword compares plaintext against a stored PHC encoded hash.
// A mismatch returns (false, nil); only a structurally invalid stored hash
// yields an error.
func VerifyPassword(plain, encoded string) (bool, error) {
	salt, key, memory, time, threads, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(plain), salt, time, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

var (
	dummyOnce    sync.Once
	dummyEncoded string
)

// VerifyDummy burns the cost of a real verification against a throwaway
// hash. Used when the identity lookup misses so the login path takes
// comparable time whether or not the email exists. Always returns false.
func VerifyDummy(plain string) bool {
	dummyOnce.Do(func() {
		random := make([]byte, 24)
		_, _ = rand.Read(random)
		dummyEncoded, _ = HashPassword(base64.RawStdEncoding.EncodeToString(random))
	})
	if dummyEncoded == "" {
		return false
	}
	ok, _ := VerifyPassword(plain, dummyEncoded)
	return ok
}

func decodeHash(encoded string) (salt, key []byte, memory, time uint32, threads uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, fmt.Errorf("%w: unexpected hash format", apperr.ErrHashingFailed)
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("%w: unsupported argon2 version", apperr.ErrHashingFailed)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("%w: unreadable parameters", apperr.ErrHashingFailed)
	}
	if memory == 0 || time == 0 || threads == 0 {
		return nil, nil, 0, 0, 0, fmt.Errorf("%w: degenerate parameters", apperr.ErrHashingFailed)
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("%w: unreadable salt", apperr.ErrHashingFailed)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, nil, 0, 0, 0, fmt.Errorf("%w: unreadable digest", apperr.ErrHashingFailed)
	}
	return salt, key, memory, time, threads, nil
}
