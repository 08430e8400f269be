package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// API keys are minted once (the admin bootstrap in main, or the admin
// user-creation endpoint) and only their Argon2id digests are stored in
// users.api_key_hash. Cost parameters follow RFC 9106's second
// recommended option (t=3, 64 MiB, p=4).
const (
	hashScheme   = "argon2id"
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashAPIKey derives the storable digest for a raw API key. The result
// embeds the scheme and salt: "argon2id$<salt>$<digest>", both base64.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	digest := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return strings.Join([]string{
		hashScheme,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	}, "$"), nil
}

// VerifyAPIKey checks a raw API key against a stored digest.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	salt, digest, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(digest, computed) == 1, nil
}

// DummyVerify burns the same Argon2id work as a real verification. The
// token handler calls it when the user ID does not resolve, so response
// timing does not reveal which user IDs exist.
func DummyVerify() {
	argon2.IDKey([]byte("decivue"), make([]byte, saltLen), argonTime, argonMemory, argonThreads, argonKeyLen)
}

func parseHash(encoded string) (salt, digest []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashScheme {
		return nil, nil, fmt.Errorf("auth: malformed api key hash")
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[1]); err != nil {
		return nil, nil, fmt.Errorf("auth: decode salt: %w", err)
	}
	if digest, err = base64.RawStdEncoding.DecodeString(parts[2]); err != nil {
		return nil, nil, fmt.Errorf("auth: decode digest: %w", err)
	}
	return salt, digest, nil
}
