package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/model"
	"bondingCurve/internal/storage"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := NewStore(ctx, ClientConfig{Addr: addr, KeyPrefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPool(id string) model.Pool {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Pool{
		ID:          id,
		Asset:       "asset",
		MaxSupply:   fixedpoint.FromUint64(1_000_000),
		FundingGoal: fixedpoint.FromUint64(100_000_000),
		BasePrice:   fixedpoint.FromUint64(30_000),
		Steepness:   fixedpoint.MustParse("0.000001"),
		State:       model.StateFunding,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testRecord(poolID, key string) model.TradeRecord {
	return model.TradeRecord{
		PoolID:         poolID,
		IdempotencyKey: key,
		Direction:      model.Sell,
		Amount:         fixedpoint.MustParse("1.5"),
		CounterAmount:  fixedpoint.MustParse("45000.03375"),
		ResultingState: model.StateFunding,
		Timestamp:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_CommitAndReplay(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePool(ctx, testPool("p1")))
	assert.ErrorIs(t, store.CreatePool(ctx, testPool("p1")), storage.ErrDuplicateKey)

	pool, version, err := store.ReadPool(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, testPool("p1"), pool)

	rec, err := store.CommitTrade(ctx, pool, version, testRecord("p1", "k1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Sequence)

	_, err = store.CommitTrade(ctx, pool, version, testRecord("p1", "k2"))
	assert.ErrorIs(t, err, storage.ErrVersionConflict)
	_, err = store.CommitTrade(ctx, pool, version+1, testRecord("p1", "k1"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	found, err := store.TradeByIdempotencyKey(ctx, "p1", "k1")
	require.NoError(t, err)
	assert.Equal(t, rec, found)

	_, err = store.TradeByIdempotencyKey(ctx, "p1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.CommitTrade(ctx, pool, version+1, testRecord("p1", "k2"))
	require.NoError(t, err)
	page, err := store.ListTrades(ctx, "p1", 1, 5)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].Sequence)
}

func TestStore_WritePoolIfVersionMatches(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePool(ctx, testPool("p1")))

	updated := testPool("p1")
	updated.State = model.StateLive
	ok, err := store.WritePoolIfVersionMatches(ctx, updated, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.WritePoolIfVersionMatches(ctx, updated, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.ReadPool(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewStoreFromClientDefaultsPrefix(t *testing.T) {
	store := NewStoreFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	assert.Equal(t, "curve:pool:p1", store.poolKey("p1"))
	assert.Equal(t, "curve:trades:p1", store.tradesKey("p1"))
	assert.Equal(t, "curve:idem:p1", store.idemKey("p1"))
	_ = store.Close()
}
