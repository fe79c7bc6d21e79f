package data

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stake-plus/escrow-market/src/api/types"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := ConnectRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNonceIsSingleUse(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)

	require.NoError(t, SetNonce(ctx, rdb, "0xABCdef", "n-1"))

	got, err := GetAndDelNonce(ctx, rdb, "0xabcDEF")
	require.NoError(t, err)
	assert.Equal(t, "n-1", got)

	_, err = GetAndDelNonce(ctx, rdb, "0xabcdef")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestPublishEvent(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)

	require.NoError(t, PublishEvent(ctx, rdb, Event{Name: "bid:new", UserID: 4, Payload: map[string]any{"bidId": 9}}))

	msgs, err := rdb.XRange(ctx, StreamEvents, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bid:new", msgs[0].Values["event"])
	assert.Equal(t, "4", msgs[0].Values["user_id"])

	var payload map[string]int
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["payload"].(string)), &payload))
	assert.Equal(t, 9, payload["bidId"])
}

func TestEnsureParam(t *testing.T) {
	assert.Equal(t, "u:p@tcp(h)/db?parseTime=true", ensureParam("u:p@tcp(h)/db", "parseTime", "true"))
	assert.Equal(t, "u:p@tcp(h)/db?a=1&parseTime=true", ensureParam("u:p@tcp(h)/db?a=1", "parseTime", "true"))
	assert.Equal(t, "x?parseTime=false", ensureParam("x?parseTime=false", "parseTime", "true"))
}

func TestMigrateCreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/m.db"), &gorm.Config{Logger: NewGormLogger()})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, m := range types.AllModels {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}
}
