package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// BalanceCache keeps account balances in Redis for the read path. A nil
// cache is valid and behaves as a permanent miss.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache constructs the cache with the supplied TTL.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceKey(clientID, accountID int64) string {
	return fmt.Sprintf("acct:balance:%d:%d", clientID, accountID)
}

// Get returns the cached balance and whether it was present.
func (c *BalanceCache) Get(ctx context.Context, clientID, accountID int64) (decimal.Decimal, bool, error) {
	if c == nil || c.client == nil {
		return decimal.Decimal{}, false, nil
	}
	raw, err := c.client.Get(ctx, balanceKey(clientID, accountID)).Result()
	if err == redis.Nil {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return balance, true, nil
}

// Set stores the balance under the account key.
func (c *BalanceCache) Set(ctx context.Context, clientID, accountID int64, balance decimal.Decimal) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, balanceKey(clientID, accountID), balance.StringFixed(2), c.ttl).Err()
}

// Invalidate drops the cached balance after a posting commits.
func (c *BalanceCache) Invalidate(ctx context.Context, clientID, accountID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, balanceKey(clientID, accountID)).Err()
}
