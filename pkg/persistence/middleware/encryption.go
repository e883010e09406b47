package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/tink-crypto/tink-go/aead"
	"github.com/tink-crypto/tink-go/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/keyset"
	"github.com/tink-crypto/tink-go/tink"
)

type encryptionMiddleware struct {
	next   ports.ConversationStore
	cipher tink.AEAD
}

// NewEncryptionMiddleware creates a middleware that seals conversation
// histories with the primary key of handle. Every key in the keyset can open
// them, so rotating keeps older records readable. The conversation ID is bound
// as associated data: a sealed history only opens under the ID it was saved with.
// IDs and timestamps stay readable so stores can index and expire conversations.
func NewEncryptionMiddleware(handle *keyset.Handle) (Middleware, error) {
	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD primitive: %w", err)
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &encryptionMiddleware{
			next:   next,
			cipher: primitive,
		}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, conv *domain.Conversation) error {
	plainText, err := json.Marshal(conv.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	ciphertext, err := m.cipher.Encrypt(plainText, []byte(conv.ID))
	if err != nil {
		return fmt.Errorf("failed to encrypt history: %w", err)
	}

	envelope := &domain.Conversation{
		ID:        conv.ID,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Sealed:    ciphertext,
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	envelope, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(envelope.Sealed) == 0 {
		// Fail closed: a plain record here means encryption was bypassed.
		return nil, errors.New("conversation is missing encrypted data envelope")
	}

	plainText, err := m.cipher.Decrypt(envelope.Sealed, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt conversation: %w", err)
	}

	var history domain.History
	if err := json.Unmarshal(plainText, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted history: %w", err)
	}

	conv := *envelope
	conv.Sealed = nil
	conv.History = history
	return &conv, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// NewKeyset creates a keyset holding one AES-256-GCM key.
func NewKeyset() (*keyset.Handle, error) {
	return keyset.NewHandle(aead.AES256GCMKeyTemplate())
}

// RotateKeyset adds a fresh AES-256-GCM key to handle and makes it primary.
func RotateKeyset(handle *keyset.Handle) (*keyset.Handle, error) {
	manager := keyset.NewManagerFromHandle(handle)
	keyID, err := manager.Add(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("failed to add key: %w", err)
	}
	if err := manager.SetPrimary(keyID); err != nil {
		return nil, fmt.Errorf("failed to promote key %d: %w", keyID, err)
	}
	return manager.Handle()
}

// ReadKeyset reads a cleartext JSON keyset.
func ReadKeyset(r io.Reader) (*keyset.Handle, error) {
	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to read keyset: %w", err)
	}
	return handle, nil
}

// WriteKeyset writes handle as cleartext JSON.
func WriteKeyset(handle *keyset.Handle, w io.Writer) error {
	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(w)); err != nil {
		return fmt.Errorf("failed to write keyset: %w", err)
	}
	return nil
}

// LoadKeyset reads the keyset file at path.
func LoadKeyset(path string) (*keyset.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyset: %w", err)
	}
	defer f.Close()
	return ReadKeyset(f)
}

// SaveKeyset writes handle to path, readable by the owner only.
func SaveKeyset(handle *keyset.Handle, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create keyset file: %w", err)
	}
	if err := WriteKeyset(handle, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
