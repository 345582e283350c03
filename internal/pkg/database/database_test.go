package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClickHouseDBClose(t *testing.T) {
	t.Run("handles nil connection", func(t *testing.T) {
		db := &ClickHouseDB{Conn: nil}
		assert.NoError(t, db.Close())
	})
}

func TestRedisDBClose(t *testing.T) {
	t.Run("handles nil client", func(t *testing.T) {
		db := &RedisDB{Client: nil}
		assert.NoError(t, db.Close())
	})
}

func TestMongoDBClose(t *testing.T) {
	t.Run("handles nil client", func(t *testing.T) {
		db := &MongoDB{}
		assert.NoError(t, db.Close(context.Background()))
	})
}

func TestMongoDBWithTransaction(t *testing.T) {
	t.Run("runs directly when transactions are disabled", func(t *testing.T) {
		db := &MongoDB{}
		called := false
		err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
			called = true
			return nil
		})
		assert.NoError(t, err)
		assert.True(t, called)
	})
}
