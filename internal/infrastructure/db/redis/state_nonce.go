package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore remembers consumed federated-state nonces until they expire.
// Key format: oauth_state:<nonce>
type NonceStore struct {
	client redis.Cmdable
}

func NewNonceStore(client redis.Cmdable) *NonceStore {
	return &NonceStore{client: client}
}

// Consume returns true the first time a nonce is seen within ttl.
func (s *NonceStore) Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	fresh, err := s.client.SetNX(ctx, "oauth_state:"+nonce, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume state nonce: %w", err)
	}
	return fresh, nil
}
