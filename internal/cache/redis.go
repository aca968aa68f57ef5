package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/travelbooking/config"
	"github.com/redis/go-redis/v9"
)

// CheckoutSession is a hosted checkout page already issued for a booking.
type CheckoutSession struct {
	PaymentURL  string `json:"payment_url"`
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type RedisCache struct {
	client     redis.Cmdable
	sessionTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, sessionTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), sessionTTL)
}

func NewRedisCacheWithClient(client redis.Cmdable, sessionTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, sessionTTL: sessionTTL}
}

// GetCheckoutSession returns nil, nil on a miss.
func (c *RedisCache) GetCheckoutSession(ctx context.Context, bookingID string) (*CheckoutSession, error) {
	data, err := c.client.Get(ctx, checkoutKey(bookingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var session CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *RedisCache) SetCheckoutSession(ctx context.Context, bookingID string, session CheckoutSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, checkoutKey(bookingID), payload, c.sessionTTL).Err()
}

func (c *RedisCache) DeleteCheckoutSession(ctx context.Context, bookingID string) error {
	return c.client.Del(ctx, checkoutKey(bookingID)).Err()
}

func checkoutKey(bookingID string) string {
	return fmt.Sprintf("checkout:paymob:%s", bookingID)
}
