package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
)

func TestSnapshotStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewSnapshotStore(client, time.Hour)
	ctx := context.Background()

	_, ok, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	generated := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	report := NewLowStockReport([]catalogapi.Product{
		{ID: 1, Name: "Tornillo", Price: decimal.NewFromInt(1), Quantity: 2},
		{ID: 2, Name: "Tuerca", Price: decimal.NewFromInt(1), Quantity: 4},
	}, generated)
	require.NoError(t, store.Save(ctx, report))

	got, ok, err := store.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 1, got.Critical)
	assert.True(t, got.GeneratedAt.Equal(generated))
	assert.Equal(t, "Tornillo", got.Items[0].Name)
	assert.True(t, mr.TTL(snapshotKey) > 0)

	mr.Set(snapshotKey, "{broken")
	_, _, err = store.Latest(ctx)
	assert.Error(t, err)
}
