package repository

import (
	"context"
	"testing"

	"github.com/ceyewan/minichat/internal/config"
	"github.com/stretchr/testify/require"
)

// newTestDB 创建内存数据库并完成迁移
func newTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}
