package crypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrShortKey   = errors.New("seal key must be at least 16 bytes")
	ErrCiphertext = errors.New("ciphertext malformed or not authentic")
)

const sealInfo = "blog-keeper/mfa-secret/v1"

// Sealer encrypts small secrets (MFA seeds) with XChaCha20-Poly1305 under a key
// derived from the server seal key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the AEAD key from master with HKDF-SHA256.
func NewSealer(master []byte) (*Sealer, error) {
	if len(master) < 16 {
		return nil, ErrShortKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(sealInfo)), key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns nonce||ciphertext; ad binds the ciphertext to its owner.
func (s *Sealer) Seal(plaintext, ad []byte) ([]byte, error) {
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+s.aead.Overhead())
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plaintext, ad), nil
}

// Open reverses Seal.
func (s *Sealer) Open(blob, ad []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX+s.aead.Overhead() {
		return nil, ErrCiphertext
	}
	nonce, ct := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	pt, err := s.aead.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, ErrCiphertext
	}
	return pt, nil
}
