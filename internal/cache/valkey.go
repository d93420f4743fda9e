package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ValkeyClient is the fast-path dedup store in front of the authoritative
// idempotency_keys table. Webhook deliveries are at-least-once, so most
// replays can be short-circuited here without touching Postgres; a cache miss
// always falls through to the database.
type ValkeyClient struct {
	client *redis.Client
}

func NewValkeyClient(addr, password string) (*ValkeyClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return &ValkeyClient{client: rdb}, nil
}

func deliveryKey(deliveryID string) string {
	return "webhook:delivery:" + deliveryID
}

// SeenDelivery reports whether the delivery id was already processed.
func (v *ValkeyClient) SeenDelivery(ctx context.Context, deliveryID string) (bool, error) {
	n, err := v.client.Exists(ctx, deliveryKey(deliveryID)).Result()
	if err != nil {
		return false, fmt.Errorf("cache lookup error: %w", err)
	}
	return n > 0, nil
}

// MarkDelivery records a processed delivery id with a TTL matching the
// idempotency window.
func (v *ValkeyClient) MarkDelivery(ctx context.Context, deliveryID string, ttl time.Duration) error {
	return v.client.Set(ctx, deliveryKey(deliveryID), "1", ttl).Err()
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}
