package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrRevokedKey = errors.New("revoked api key")
)

// Record is the stored shape of an issued workspace key. Only the hash is
// persisted; the full key is shown once at issue time.
type Record struct {
	ID          string
	WorkspaceID string
	KeyHash     string
	RevokedAt   *time.Time
}

// Generate issues a new key of the form vk_<env>_<prefix>.<secret>. The
// prefix is stored alongside the hash so keys can be looked up without
// revealing the secret.
func Generate(env string) (fullKey string, prefix string, hash string, err error) {
	prefix, err = randomPrefix()
	if err != nil {
		return "", "", "", err
	}
	secret, err := randomSecret()
	if err != nil {
		return "", "", "", err
	}
	fullKey = fmt.Sprintf("vk_%s_%s.%s", env, prefix, secret)
	hash = Hash(prefix, secret)
	return fullKey, prefix, hash, nil
}

func Parse(key string) (env string, prefix string, secret string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return "", "", "", ErrInvalidKey
	}
	secret = parts[1]

	headParts := strings.SplitN(parts[0], "_", 3)
	if len(headParts) != 3 || headParts[0] != "vk" {
		return "", "", "", ErrInvalidKey
	}
	env = headParts[1]
	prefix = headParts[2]
	if env == "" || prefix == "" || secret == "" {
		return "", "", "", ErrInvalidKey
	}
	return env, prefix, secret, nil
}

func Hash(prefix, secret string) string {
	sum := sha256.Sum256([]byte(prefix + "." + secret))
	return hex.EncodeToString(sum[:])
}

// Verify checks a presented key against a stored record and returns the
// owning workspace id.
func Verify(key string, record Record) (string, error) {
	_, prefix, secret, err := Parse(key)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(Hash(prefix, secret), record.KeyHash) {
		return "", ErrInvalidKey
	}
	if record.RevokedAt != nil {
		return "", ErrRevokedKey
	}
	return record.WorkspaceID, nil
}

func randomPrefix() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return strings.ToLower(enc.EncodeToString(buf)), nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
