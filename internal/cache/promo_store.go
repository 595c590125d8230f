package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AppliedPromoTTL bounds how long an applied code survives without checkout.
const AppliedPromoTTL = 7 * 24 * time.Hour

// RedisPromoStore keeps at most one applied promo per user under a single
// key, so concurrent applies resolve as last write wins.
type RedisPromoStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisPromoStore(client redis.Cmdable) *RedisPromoStore {
	return &RedisPromoStore{client: client, ttl: AppliedPromoTTL}
}

// Get returns nil, nil when no promo is applied.
func (s *RedisPromoStore) Get(ctx context.Context, userID string) (*domain.AppliedPromo, error) {
	data, err := s.client.Get(ctx, promoKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError("get applied promo", err)
	}

	promo := domain.AppliedPromo{UserID: userID}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &promo); err != nil {
			return nil, fmt.Errorf("unmarshal applied promo: %w", err)
		}
	} else {
		// bare code written by older clients
		promo.Code = trimmed
	}
	if promo.Code == "" {
		return nil, nil
	}
	return &promo, nil
}

func (s *RedisPromoStore) Set(ctx context.Context, promo domain.AppliedPromo) error {
	data, err := json.Marshal(promo)
	if err != nil {
		return fmt.Errorf("marshal applied promo: %w", err)
	}
	if err := s.client.Set(ctx, promoKey(promo.UserID), data, s.ttl).Err(); err != nil {
		return domain.StorageError("set applied promo", err)
	}
	return nil
}

// Delete is a no-op when nothing is applied.
func (s *RedisPromoStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, promoKey(userID)).Err(); err != nil {
		return domain.StorageError("delete applied promo", err)
	}
	return nil
}

func promoKey(userID string) string {
	return fmt.Sprintf("cart:promo:%s", userID)
}
