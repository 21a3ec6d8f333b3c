package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/fleetdesk/internal/domain"
)

func setupRedis(t *testing.T) *RedisMessageStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisMessageStore(client)
}

func TestRedisMessageStore_AppendAndList(t *testing.T) {
	s := setupRedis(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC)

	first, err := s.Append(ctx, domain.Message{
		ID: "m1", ThreadKey: "thread:u1", Sender: domain.SenderUser, SenderID: "u1", Text: "brakes squeak", Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)

	second, err := s.Append(ctx, domain.Message{
		ID: "m2", ThreadKey: "thread:u1", Sender: domain.SenderAdmin, SenderID: "a1", Text: "bring it in", Timestamp: ts.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)

	msgs, err := s.List(ctx, "thread:u1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, ts, msgs[0].Timestamp)
	assert.Equal(t, "thread:u1", msgs[0].ThreadKey)
	assert.Equal(t, domain.SenderAdmin, msgs[1].Sender)

	tail, err := s.List(ctx, "thread:u1", 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(2), tail[0].Seq)

	none, err := s.List(ctx, "thread:nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisMessageStore_Threads(t *testing.T) {
	s := setupRedis(t)
	ctx := context.Background()

	for _, key := range []string{"thread:u2", "thread:u1", "thread:u2"} {
		_, err := s.Append(ctx, domain.Message{ID: key, ThreadKey: key, Timestamp: time.Now()})
		require.NoError(t, err)
	}

	threads, err := s.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"thread:u1", "thread:u2"}, threads)
}
