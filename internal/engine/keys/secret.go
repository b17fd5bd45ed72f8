package keys

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	secretPrefix = "ck_live_"
	// secretLength random base62 chars after the prefix, ~380 bits.
	secretLength = 64
	// displayPrefixLen covers "ck_live_" plus 7 random chars; enough to
	// index and display without weakening the remaining ~339 bits.
	displayPrefixLen = 15
)

var base62 = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// argon2id parameters: 64MB memory, 1 pass, 4 lanes, 16-byte salt,
// 32-byte digest.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 1
	argonParallelism = 4
	argonSaltLen     = 16
	argonKeyLen      = 32
)

// GenerateSecret produces a new credential secret and its displayable
// prefix. Each call draws fresh randomness; concurrent calls never
// collide.
func GenerateSecret() (plaintext, prefix string, err error) {
	buf := make([]byte, secretLength)
	max := big.NewInt(int64(len(base62)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", "", err
		}
		buf[i] = base62[n.Int64()]
	}

	plaintext = secretPrefix + string(buf)
	return plaintext, plaintext[:displayPrefixLen], nil
}

// Prefix derives the displayable prefix of a presented secret, used to
// narrow the stored-record lookup without exposing the remainder.
func Prefix(secret string) string {
	if len(secret) < displayPrefixLen {
		return secret
	}
	return secret[:displayPrefixLen]
}

// HashSecret computes a salted argon2id digest in the standard encoded
// form. The plaintext is not recoverable from the result.
func HashSecret(plaintext string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	digest := argon2.IDKey([]byte(plaintext), salt, argonIterations, argonMemory, argonParallelism, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// VerifySecret recomputes the digest with the stored parameters and
// compares in constant time, so verification latency does not leak where
// the first mismatching byte sits.
func VerifySecret(plaintext, encodedHash string) (bool, error) {
	memory, iterations, parallelism, salt, digest, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	other := argon2.IDKey([]byte(plaintext), salt, iterations, memory, parallelism, uint32(len(digest)))

	return subtle.ConstantTimeCompare(digest, other) == 1, nil
}

func decodeHash(encodedHash string) (memory, iterations uint32, parallelism uint8, salt, digest []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, errors.New("invalid hash format")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, err
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("incompatible argon2 version")
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return 0, 0, 0, nil, nil, err
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}

	return memory, iterations, parallelism, salt, digest, nil
}
