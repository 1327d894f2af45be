package enforcement

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

const (
	keyIterations = 100000
	keyLength     = 32 // AES-256
)

// ErrUnknownRef is returned when a vault reference is unknown or was evicted.
var ErrUnknownRef = errors.New("unknown encryption reference")

// Encryptor turns a sensitive value into an opaque reference to its ciphertext.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (ref string, err error)
}

// AESEncryptor seals values with AES-256-GCM under a PBKDF2-SHA256 derived key
// and keeps the ciphertext in a Vault.
type AESEncryptor struct {
	aead  cipher.AEAD
	vault *Vault
}

// NewAESEncryptor derives the key from secret and salt.
func NewAESEncryptor(secret, salt string, vault *Vault) (*AESEncryptor, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is empty")
	}
	if vault == nil {
		return nil, fmt.Errorf("vault is nil")
	}

	key := pbkdf2.Key([]byte(secret), []byte(salt), keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AESEncryptor{aead: aead, vault: vault}, nil
}

// Encrypt seals plaintext and returns the vault reference. A cancelled or
// expired context is reported as models.ErrCollaboratorUnavailable.
func (e *AESEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: read nonce: %v", models.ErrCollaboratorUnavailable, err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return e.vault.Put(sealed), nil
}

// Decrypt opens the ciphertext stored under ref.
func (e *AESEncryptor) Decrypt(ref string) (string, error) {
	sealed, ok := e.vault.Get(ref)
	if !ok {
		return "", ErrUnknownRef
	}
	size := e.aead.NonceSize()
	if len(sealed) < size {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := e.aead.Open(nil, sealed[:size], sealed[size:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}
