package apikey

import (
	"testing"
	"time"
)

func TestGenerateParseVerify(t *testing.T) {
	key, prefix, hash, err := Generate("dev")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	env, parsedPrefix, secret, err := Parse(key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env != "dev" {
		t.Fatalf("expected env dev, got %s", env)
	}
	if parsedPrefix != prefix {
		t.Fatalf("expected prefix %s, got %s", prefix, parsedPrefix)
	}
	if secret == "" {
		t.Fatalf("expected secret")
	}

	workspaceID, err := Verify(key, Record{KeyHash: hash, WorkspaceID: "ws-1"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if workspaceID != "ws-1" {
		t.Fatalf("expected workspace ws-1, got %s", workspaceID)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, key := range []string{"", "vk_dev_abc", "ck_dev_abc.secret", "vk__abc.secret", "vk_dev_.secret"} {
		if _, _, _, err := Parse(key); err != ErrInvalidKey {
			t.Fatalf("expected invalid key for %q, got %v", key, err)
		}
	}
}

func TestVerifyRejectsRevoked(t *testing.T) {
	key, _, hash, _ := Generate("dev")
	now := time.Now()
	if _, err := Verify(key, Record{KeyHash: hash, RevokedAt: &now}); err != ErrRevokedKey {
		t.Fatalf("expected revoked error, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	_, _, hash, _ := Generate("dev")
	other, _, _, _ := Generate("dev")
	if _, err := Verify(other, Record{KeyHash: hash}); err != ErrInvalidKey {
		t.Fatalf("expected invalid key, got %v", err)
	}
}
