package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lumixd/src/database"
	"lumixd/src/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	return db
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyFillLifecycle(t *testing.T) {
	repo := (&PositionRepository{}).WithDB(newTestDB(t))
	ctx := context.Background()

	// First buy creates the position.
	require.NoError(t, repo.ApplyFill(ctx, "inst-1", "TOKEN", d("10")))

	position, err := repo.Find(ctx, "inst-1", "TOKEN")
	require.NoError(t, err)
	require.NotNil(t, position)
	require.True(t, position.Amount.Equal(d("10")), "got %s", position.Amount)

	// Subsequent buy increments.
	require.NoError(t, repo.ApplyFill(ctx, "inst-1", "TOKEN", d("2.5")))

	position, err = repo.Find(ctx, "inst-1", "TOKEN")
	require.NoError(t, err)
	require.True(t, position.Amount.Equal(d("12.5")), "got %s", position.Amount)

	// Sell decrements.
	require.NoError(t, repo.ApplyFill(ctx, "inst-1", "TOKEN", d("-5")))

	position, err = repo.Find(ctx, "inst-1", "TOKEN")
	require.NoError(t, err)
	require.True(t, position.Amount.Equal(d("7.5")), "got %s", position.Amount)

	// Selling the rest deletes the row.
	require.NoError(t, repo.ApplyFill(ctx, "inst-1", "TOKEN", d("-7.5")))

	position, err = repo.Find(ctx, "inst-1", "TOKEN")
	require.NoError(t, err)
	require.Nil(t, position)
}

func TestApplyFillReduceWithoutPosition(t *testing.T) {
	repo := (&PositionRepository{}).WithDB(newTestDB(t))

	err := repo.ApplyFill(context.Background(), "inst-1", "TOKEN", d("-1"))
	require.Error(t, err)
}

func TestReplaceAllOverwritesCache(t *testing.T) {
	db := newTestDB(t)
	repo := (&PositionRepository{}).WithDB(db)
	ctx := context.Background()

	require.NoError(t, repo.ApplyFill(ctx, "inst-1", "STALE", d("99")))
	require.NoError(t, repo.ApplyFill(ctx, "inst-1", "KEPT", d("1")))

	require.NoError(t, repo.ReplaceAll(ctx, []model.Position{
		{InstanceID: "inst-1", Token: "KEPT", Amount: d("7")},
	}))

	stale, err := repo.Find(ctx, "inst-1", "STALE")
	require.NoError(t, err)
	require.Nil(t, stale)

	kept, err := repo.Find(ctx, "inst-1", "KEPT")
	require.NoError(t, err)
	require.NotNil(t, kept)
	require.True(t, kept.Amount.Equal(d("7")), "got %s", kept.Amount)
}

func TestFindMissingPosition(t *testing.T) {
	repo := (&PositionRepository{}).WithDB(newTestDB(t))

	position, err := repo.Find(context.Background(), "inst-1", "NOPE")
	require.NoError(t, err)
	require.Nil(t, position)
}
