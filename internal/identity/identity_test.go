package identity_test

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"koru-delta/internal/identity"
	"koru-delta/internal/kerr"
	"koru-delta/internal/store"
)

func TestCreateGetVerifyIdentity(t *testing.T) {
	t.Run("create then get returns the stored public key and metadata", func(t *testing.T) {
		s := store.NewMemory()
		priv, err := identity.CreateIdentity(s, "alice", 1000, map[string]any{"role": "admin"})
		if err != nil {
			t.Fatalf("CreateIdentity: %v", err)
		}
		if len(priv) != ed25519.PrivateKeySize {
			t.Fatalf("expected a private key of size %d, got %d", ed25519.PrivateKeySize, len(priv))
		}

		rec, err := identity.GetIdentity(s, "alice")
		if err != nil {
			t.Fatalf("GetIdentity: %v", err)
		}
		if len(rec.PublicKey) != ed25519.PublicKeySize {
			t.Errorf("expected a public key of size %d, got %d", ed25519.PublicKeySize, len(rec.PublicKey))
		}
		if rec.CreatedAt != 1000 {
			t.Errorf("expected created_at 1000, got %d", rec.CreatedAt)
		}
		if rec.Metadata["role"] != "admin" {
			t.Errorf("expected metadata role=admin, got %v", rec.Metadata)
		}
	})

	t.Run("get of an unknown identity is NotFound", func(t *testing.T) {
		s := store.NewMemory()
		if _, err := identity.GetIdentity(s, "nope"); !errors.Is(err, kerr.NotFound) {
			t.Errorf("expected NotFound, got %v", err)
		}
	})

	t.Run("verify accepts a signature from the matching private key", func(t *testing.T) {
		s := store.NewMemory()
		priv, err := identity.CreateIdentity(s, "alice", 1000, nil)
		if err != nil {
			t.Fatalf("CreateIdentity: %v", err)
		}

		message := []byte("hello world")
		sig := ed25519.Sign(priv, message)

		ok, err := identity.VerifyIdentity(s, "alice", message, sig)
		if err != nil {
			t.Fatalf("VerifyIdentity: %v", err)
		}
		if !ok {
			t.Errorf("expected a valid signature to verify")
		}
	})

	t.Run("verify rejects a signature from a different key", func(t *testing.T) {
		s := store.NewMemory()
		if _, err := identity.CreateIdentity(s, "alice", 1000, nil); err != nil {
			t.Fatalf("CreateIdentity: %v", err)
		}
		_, otherPriv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}

		message := []byte("hello world")
		forged := ed25519.Sign(otherPriv, message)

		ok, err := identity.VerifyIdentity(s, "alice", message, forged)
		if err != nil {
			t.Fatalf("VerifyIdentity: %v", err)
		}
		if ok {
			t.Errorf("expected a signature from a different key to fail verification")
		}
	})
}
