package cache

import (
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db)

	mock.ExpectSet("search:abc", []byte("payload"), time.Hour).SetVal("OK")
	c.Set("search:abc", []byte("payload"), time.Hour)

	mock.ExpectGet("search:abc").SetVal("payload")
	got, ok := c.Get("search:abc")
	require.True(t, ok, "stored key should hit")
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetMissAndError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db)

	mock.ExpectGet("absent").RedisNil()
	_, ok := c.Get("absent")
	assert.False(t, ok, "nil reply is a miss")

	mock.ExpectGet("broken").SetErr(assert.AnError)
	_, ok = c.Get("broken")
	assert.False(t, ok, "errors degrade to a miss")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_SetNX(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db)

	mock.ExpectSetNX("msg_notify:u1:c1", []byte("1"), 15*time.Minute).SetVal(true)
	assert.True(t, c.SetNX("msg_notify:u1:c1", []byte("1"), 15*time.Minute))

	mock.ExpectSetNX("msg_notify:u1:c1", []byte("1"), 15*time.Minute).SetVal(false)
	assert.False(t, c.SetNX("msg_notify:u1:c1", []byte("1"), 15*time.Minute))

	// Unreachable cache must not suppress sends.
	mock.ExpectSetNX("msg_notify:u1:c1", []byte("1"), 15*time.Minute).SetErr(assert.AnError)
	assert.True(t, c.SetNX("msg_notify:u1:c1", []byte("1"), 15*time.Minute))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_DeletePrefix(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db)

	mock.ExpectScan(0, "search:*", 200).SetVal([]string{"search:a", "search:b"}, 1)
	mock.ExpectDel("search:a", "search:b").SetVal(2)
	mock.ExpectScan(1, "search:*", 200).SetVal([]string{"search:c"}, 0)
	mock.ExpectDel("search:c").SetVal(1)

	c.DeletePrefix("search:")

	require.NoError(t, mock.ExpectationsWereMet())
}
