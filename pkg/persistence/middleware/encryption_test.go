package middleware_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/persistence/middleware"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/tink-crypto/tink-go/keyset"
)

func generateKeyset(t *testing.T) *keyset.Handle {
	t.Helper()
	h, err := middleware.NewKeyset()
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func encrypted(t *testing.T, h *keyset.Handle, next ports.ConversationStore) ports.ConversationStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(h)
	if err != nil {
		t.Fatal(err)
	}
	return mw(next)
}

func secretConversation(id, content string) *domain.Conversation {
	conv := domain.NewConversation(id)
	conv.History = domain.NewHistory(domain.NewUserMessage(content))
	return conv
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := NewMockStore()
	secureStore := encrypted(t, generateKeyset(t), underlyingStore)
	ctx := context.Background()

	if err := secureStore.Save(ctx, secretConversation("c1", "my salary is 9000")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := underlyingStore.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if !stored.History.IsEmpty() {
		t.Fatalf("Expected history to be hidden, found %d messages", stored.History.Len())
	}
	if len(stored.Sealed) == 0 {
		t.Fatal("Expected sealed payload")
	}
	if strings.Contains(string(stored.Sealed), "salary") {
		t.Fatal("Sealed payload contains plaintext")
	}

	loaded, err := secureStore.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.History.Len() != 1 || loaded.History.At(0).Content != "my salary is 9000" {
		t.Errorf("Unexpected decrypted history: %+v", loaded.History.Messages())
	}
	if loaded.Sealed != nil {
		t.Error("Decrypted conversation should not carry the sealed payload")
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunConversationStoreContract(t, encrypted(t, generateKeyset(t), NewMockStore()))
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := NewMockStore()
	ctx := context.Background()

	oldKeys := generateKeyset(t)
	secureStoreOld := encrypted(t, oldKeys, underlyingStore)
	if err := secureStoreOld.Save(ctx, secretConversation("rot", "old")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	newKeys, err := middleware.RotateKeyset(oldKeys)
	if err != nil {
		t.Fatalf("RotateKeyset failed: %v", err)
	}
	if got := len(newKeys.KeysetInfo().GetKeyInfo()); got != 2 {
		t.Fatalf("Expected 2 keys after rotation, got %d", got)
	}
	if newKeys.KeysetInfo().GetPrimaryKeyId() == oldKeys.KeysetInfo().GetPrimaryKeyId() {
		t.Fatal("Rotation should promote the new key")
	}
	secureStoreNew := encrypted(t, newKeys, underlyingStore)

	loaded, err := secureStoreNew.Load(ctx, "rot")
	if err != nil {
		t.Fatalf("Load with rotated keyset failed: %v", err)
	}
	if loaded.History.At(0).Content != "old" {
		t.Errorf("Decryption with the retired key failed")
	}

	if err := secureStoreNew.Save(ctx, secretConversation("rot", "new")); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}
	if _, err := secureStoreOld.Load(ctx, "rot"); err == nil {
		t.Error("Expected failure when loading new-key encryption with the old keyset")
	}
}

func TestEncryptionMiddleware_BindsConversationID(t *testing.T) {
	underlyingStore := NewMockStore()
	secureStore := encrypted(t, generateKeyset(t), underlyingStore)
	ctx := context.Background()

	if err := secureStore.Save(ctx, secretConversation("alice", "alice's balance")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	stolen, err := underlyingStore.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	stolen.ID = "mallory"
	if err := underlyingStore.Save(ctx, stolen); err != nil {
		t.Fatal(err)
	}

	if _, err := secureStore.Load(ctx, "mallory"); err == nil {
		t.Error("Expected a sealed history copied to another ID to be rejected")
	}
}

func TestEncryptionMiddleware_RejectsPlainRecords(t *testing.T) {
	underlyingStore := NewMockStore()
	ctx := context.Background()
	_ = underlyingStore.Save(ctx, secretConversation("plain", "hello"))

	secureStore := encrypted(t, generateKeyset(t), underlyingStore)
	if _, err := secureStore.Load(ctx, "plain"); err == nil {
		t.Error("Expected plain record to be rejected")
	}
}

func TestKeysetFiles(t *testing.T) {
	h := generateKeyset(t)
	path := filepath.Join(t.TempDir(), "keyset.json")
	if err := middleware.SaveKeyset(h, path); err != nil {
		t.Fatalf("SaveKeyset failed: %v", err)
	}

	loaded, err := middleware.LoadKeyset(path)
	if err != nil {
		t.Fatalf("LoadKeyset failed: %v", err)
	}
	if loaded.KeysetInfo().GetPrimaryKeyId() != h.KeysetInfo().GetPrimaryKeyId() {
		t.Error("LoadKeyset returned a different keyset")
	}

	if _, err := middleware.ReadKeyset(bytes.NewBufferString("not a keyset")); err == nil {
		t.Error("Expected error for malformed keyset")
	}
	if _, err := middleware.LoadKeyset(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing keyset file")
	}
}
