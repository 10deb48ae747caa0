package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	accounts PostingAccounts
	calls    int
}

func (s *countingSource) PostingAccounts(_ context.Context) (PostingAccounts, error) {
	s.calls++
	return s.accounts, nil
}

func TestCachedAccountsReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &countingSource{accounts: PostingAccounts{Inventory: 100, GoodsInTransit: 200, TaxCredit: 300, Payables: 400}}
	cached := NewCachedAccounts(source, client, time.Minute, nil)

	first, err := cached.PostingAccounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, source.accounts, first)
	require.Equal(t, 1, source.calls)

	second, err := cached.PostingAccounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, source.accounts, second)
	require.Equal(t, 1, source.calls)
}

func TestCachedAccountsInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &countingSource{accounts: PostingAccounts{Inventory: 100}}
	cached := NewCachedAccounts(source, client, time.Minute, nil)

	_, err := cached.PostingAccounts(context.Background())
	require.NoError(t, err)
	require.NoError(t, cached.Invalidate(context.Background()))

	source.accounts.Payables = 400
	refreshed, err := cached.PostingAccounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(400), refreshed.Payables)
	require.Equal(t, 2, source.calls)
}

func TestCachedAccountsWithoutRedisFallsThrough(t *testing.T) {
	source := &countingSource{accounts: PostingAccounts{Inventory: 100}}
	cached := NewCachedAccounts(source, nil, time.Minute, nil)

	for i := 0; i < 3; i++ {
		_, err := cached.PostingAccounts(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 3, source.calls)
}
