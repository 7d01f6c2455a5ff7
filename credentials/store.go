package credentials

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"

	"github.com/jrsteele09/ingredient-sheets/kvstore"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	keyPrefix = "credential:"
	hkdfInfo  = "ingredient-sheets credential store v1"
)

// Store persists credentials durably, keyed by identity, sealed with
// XChaCha20-Poly1305 under a key derived from the configured secret.
type Store struct {
	kv   kvstore.Store
	aead cipher.AEAD
}

// NewStore derives the encryption key from secret. An empty secret is refused.
func NewStore(kv kvstore.Store, secret string) (*Store, error) {
	if kv == nil {
		return nil, errors.New("[credentials NewStore] kv store is required")
	}
	if secret == "" {
		return nil, errors.New("[credentials NewStore] encryption secret is required")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, errors.Wrap(err, "derive credential key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "init credential cipher")
	}
	return &Store{kv: kv, aead: aead}, nil
}

// Save overwrites the credential stored for identity.
func (s *Store) Save(ctx context.Context, identity string, cred *Credential) error {
	if identity == "" {
		return errors.New("identity is required")
	}
	if cred == nil {
		return errors.New("credential is required")
	}

	plain, err := json.Marshal(cred)
	if err != nil {
		return errors.Wrap(err, "encode credential")
	}
	sealed, err := s.seal(storeKey(identity), plain)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, storeKey(identity), sealed); err != nil {
		return errors.Wrapf(err, "save credential for %s", identity)
	}
	return nil
}

// Load returns the credential for identity. A missing credential is
// reported through the bool, never as an error.
func (s *Store) Load(ctx context.Context, identity string) (*Credential, bool, error) {
	sealed, found, err := s.kv.Get(ctx, storeKey(identity))
	if err != nil {
		return nil, false, errors.Wrapf(err, "load credential for %s", identity)
	}
	if !found {
		return nil, false, nil
	}

	plain, err := s.open(storeKey(identity), sealed)
	if err != nil {
		return nil, false, err
	}
	var cred Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return nil, false, errors.Wrap(err, "decode credential")
	}
	return &cred, true, nil
}

func (s *Store) seal(key string, plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return s.aead.Seal(nonce, nonce, plain, []byte(key)), nil
}

func (s *Store) open(key string, sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, errors.New("stored credential is truncated")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, errors.Wrap(err, "decrypt credential")
	}
	return plain, nil
}

func storeKey(identity string) string {
	return keyPrefix + identity
}
