package transport

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealer derives a per-tunnel AEAD key from a shared secret and seals
// packets before they reach the wire. Both concrete transports use this so
// neither hand-rolls its own framing crypto; key derivation and sealing
// live entirely inside these transports, which own their own wire format,
// never in the pool itself.
type sealer struct {
	aead cipher.AEAD
}

// newSealer derives a 256-bit key from secret via HKDF-SHA256 and
// constructs a ChaCha20-Poly1305 AEAD over it. secret is expected to come
// from the tunnel URL's fragment, the convention both transports use to
// carry a pre-shared key without the pool itself parsing it.
func newSealer(secret string) (*sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("transport: empty session secret")
	}

	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("tunnelpool-session-key"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("transport: derive session key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("transport: construct aead: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal prepends a random nonce and appends the AEAD tag.
func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("transport: generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open reverses seal, returning the original plaintext.
func (s *sealer) open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("transport: sealed payload too short")
	}
	nonce, ciphertext := sealed[:n], sealed[n:]
	return s.aead.Open(nil, nonce, ciphertext, nil)
}
