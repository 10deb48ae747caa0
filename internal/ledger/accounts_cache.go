package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const accountsCacheKey = "ledger:posting_accounts"

// CachedAccounts is a read-through cache in front of an AccountsSource.
// Posting workflows resolve the configuration on every operation, so
// the mapping table read is cached with a short TTL. Cache failures
// fall back to the source; a stale-but-present mapping is still
// re-validated per operation by the ForX precondition checks.
type CachedAccounts struct {
	source AccountsSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedAccounts wraps source with a redis cache.
func NewCachedAccounts(source AccountsSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedAccounts {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedAccounts{source: source, client: client, ttl: ttl, logger: logger}
}

// PostingAccounts implements AccountsSource.
func (c *CachedAccounts) PostingAccounts(ctx context.Context) (PostingAccounts, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, accountsCacheKey).Bytes()
		if err == nil {
			var accounts PostingAccounts
			if err := json.Unmarshal(raw, &accounts); err == nil {
				return accounts, nil
			}
		} else if err != redis.Nil && c.logger != nil {
			c.logger.Warn("accounts cache read", slog.Any("error", err))
		}
	}
	accounts, err := c.source.PostingAccounts(ctx)
	if err != nil {
		return PostingAccounts{}, err
	}
	if c.client != nil {
		raw, err := json.Marshal(accounts)
		if err == nil {
			if err := c.client.Set(ctx, accountsCacheKey, raw, c.ttl).Err(); err != nil && c.logger != nil {
				c.logger.Warn("accounts cache write", slog.Any("error", err))
			}
		}
	}
	return accounts, nil
}

// Invalidate drops the cached configuration, called after mapping updates.
func (c *CachedAccounts) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, accountsCacheKey).Err()
}
