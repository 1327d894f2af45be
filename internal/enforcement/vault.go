package enforcement

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Vault holds encrypted values keyed by opaque references. It is bounded; the
// least recently used ciphertexts are evicted once size is reached.
type Vault struct {
	cache *lru.Cache[string, []byte]
}

// NewVault creates a vault holding at most size ciphertexts.
func NewVault(size int) (*Vault, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}
	return &Vault{cache: cache}, nil
}

// Put stores ciphertext and returns its reference.
func (v *Vault) Put(ciphertext []byte) string {
	ref := uuid.NewString()
	v.cache.Add(ref, ciphertext)
	return ref
}

// Get returns the ciphertext for ref.
func (v *Vault) Get(ref string) ([]byte, bool) {
	return v.cache.Get(ref)
}

// Len returns the number of stored ciphertexts.
func (v *Vault) Len() int {
	return v.cache.Len()
}
