package migrations

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestMigrator_UpAndStatus(t *testing.T) {
	db := setupDB(t)
	m := NewMigrator(db, nil)
	m.RegisterAll(AllMigrations())

	ctx := context.Background()
	require.NoError(t, m.Up(ctx))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(AllMigrations()))
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Version)
		assert.NotNil(t, s.AppliedAt)
	}

	assert.True(t, db.Migrator().HasTable("entries"))
	assert.True(t, db.Migrator().HasIndex("entries", "idx_entries_channel_window"))
}

func TestMigrator_Down(t *testing.T) {
	db := setupDB(t)
	m := NewMigrator(db, nil)
	m.RegisterAll(AllMigrations())

	ctx := context.Background()
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasIndex("entries", "idx_entries_channel_window"))

	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasTable("entries"))

	// nothing left to roll back
	require.NoError(t, m.Down(ctx))
}

func TestMigrator_OrdersByVersion(t *testing.T) {
	db := setupDB(t)
	var order []string
	step := func(v string) Migration {
		return Migration{Version: v, Description: v, Up: func(*gorm.DB) error {
			order = append(order, v)
			return nil
		}}
	}

	m := NewMigrator(db, nil)
	m.RegisterAll([]Migration{step("003"), step("001"), step("002")})
	require.NoError(t, m.Up(context.Background()))

	assert.Equal(t, []string{"001", "002", "003"}, order)
}
