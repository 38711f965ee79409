package oauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

const stateKeyInfo = "auth-backend federated state v1"

// SealedStateCodec encrypts the federated state with AES-256-GCM. The key is
// derived from a configured secret, so the state is both opaque and
// tamper-evident without a server-side copy.
type SealedStateCodec struct {
	aead cipher.AEAD
	now  func() time.Time
}

var _ ports.StateCodec = (*SealedStateCodec)(nil)

func NewSealedStateCodec(secret string) (*SealedStateCodec, error) {
	if secret == "" {
		return nil, errors.New("state codec: empty secret")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(stateKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("state codec: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("state codec: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("state codec: %w", err)
	}
	return &SealedStateCodec{aead: aead, now: time.Now}, nil
}

func (c *SealedStateCodec) Encode(state *domain.FederatedState) (string, error) {
	if state == nil {
		return "", domain.ErrInvalidState
	}
	plaintext, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("state nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a sealed state. Every failure, including expiry, is
// domain.ErrInvalidState.
func (c *SealedStateCodec) Decode(raw string) (*domain.FederatedState, error) {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", domain.ErrInvalidState)
	}
	size := c.aead.NonceSize()
	if len(data) <= size {
		return nil, fmt.Errorf("%w: too short", domain.ErrInvalidState)
	}

	plaintext, err := c.aead.Open(nil, data[:size], data[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", domain.ErrInvalidState)
	}

	var state domain.FederatedState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	if state.ExpiresAt > 0 && c.now().Unix() > state.ExpiresAt {
		return nil, fmt.Errorf("%w: expired", domain.ErrInvalidState)
	}
	return &state, nil
}
