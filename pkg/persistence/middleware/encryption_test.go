package middleware_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/persistence/middleware"
	"github.com/aretw0/fable/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, next ports.Storage, cfg middleware.EncryptionConfig) ports.Storage {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunStorageContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	ctx := context.Background()
	payload := []byte(`{"state":{"flags":{"secret":"my-secret-sauce"}}}`)

	if err := secure.Save(ctx, "slot", payload); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := underlying.Load(ctx, "slot")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if bytes.Contains(raw, []byte("my-secret-sauce")) {
		t.Fatal("Expected secret to be hidden in storage")
	}

	loaded, err := secure.Load(ctx, "slot")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Errorf("Expected %s, got %s", payload, loaded)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	if err := oldStore.Save(ctx, "slot", []byte("encrypted-with-old-key")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Load(ctx, "slot")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if string(loaded) != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed, got %q", loaded)
	}

	if err := newStore.Save(ctx, "slot", []byte("encrypted-with-new-key")); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}
	if _, err := oldStore.Load(ctx, "slot"); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_Plaintext(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	if err := underlying.Save(ctx, "legacy", []byte("plain")); err != nil {
		t.Fatal(err)
	}

	strict := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := strict.Load(ctx, "legacy"); !errors.Is(err, middleware.ErrNotEncrypted) {
		t.Errorf("Expected ErrNotEncrypted, got %v", err)
	}

	lenient := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t), AllowPlaintext: true})
	data, err := lenient.Load(ctx, "legacy")
	if err != nil || string(data) != "plain" {
		t.Errorf("Expected plaintext passthrough, got %q, %v", data, err)
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); err == nil {
		t.Error("Expected error for invalid key size")
	}
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    make([]byte, 32),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	if err == nil {
		t.Error("Expected error for invalid fallback key size")
	}
}
