package quota

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/optiview/adminrelay/internal/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	l, err := NewLedger(db)
	require.NoError(t, err)
	return l
}

func TestCheckLimitNoTier(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.CheckLimit(context.Background(), "u1", "audience", models.OpCreate)
	assert.ErrorIs(t, err, ErrNoTier)
}

func TestCheckLimitPerOperation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.SetTier(ctx, TierLimit{
		UserID: "u1", Feature: "audience",
		CreateLimit: 5, CreateUsage: 5,
		UpdateLimit: 3, UpdateUsage: 1,
	})
	require.NoError(t, err)

	create, err := l.CheckLimit(ctx, "u1", "audience", models.OpCreate)
	require.NoError(t, err)
	assert.True(t, create.LimitReached)
	assert.Equal(t, int64(0), create.Available())

	update, err := l.CheckLimit(ctx, "u1", "audience", models.OpUpdate)
	require.NoError(t, err)
	assert.False(t, update.LimitReached)
	assert.Equal(t, int64(2), update.Available())
}

func TestIncrementUsageStopsAtLimit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.SetTier(ctx, TierLimit{UserID: "u1", Feature: "audience", CreateLimit: 2})
	require.NoError(t, err)
	check, err := l.CheckLimit(ctx, "u1", "audience", models.OpCreate)
	require.NoError(t, err)

	require.NoError(t, l.IncrementUsage(ctx, check.LedgerID, models.OpCreate))
	require.NoError(t, l.IncrementUsage(ctx, check.LedgerID, models.OpCreate))

	// The guarded update must refuse to push usage past the limit.
	err = l.IncrementUsage(ctx, check.LedgerID, models.OpCreate)
	assert.Error(t, err)

	after, err := l.CheckLimit(ctx, "u1", "audience", models.OpCreate)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.Usage)
	assert.True(t, after.LimitReached)
}

func TestIncrementUsageConcurrent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.SetTier(ctx, TierLimit{UserID: "u1", Feature: "audience", CreateLimit: 64})
	require.NoError(t, err)
	check, err := l.CheckLimit(ctx, "u1", "audience", models.OpCreate)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.IncrementUsage(ctx, check.LedgerID, models.OpCreate))
		}()
	}
	wg.Wait()

	after, err := l.CheckLimit(ctx, "u1", "audience", models.OpCreate)
	require.NoError(t, err)
	assert.Equal(t, int64(16), after.Usage, "each concurrent success lands exactly once")
}

func TestSetTierReplacesExistingRow(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	first, err := l.SetTier(ctx, TierLimit{UserID: "u1", Feature: "audience", CreateLimit: 5})
	require.NoError(t, err)
	second, err := l.SetTier(ctx, TierLimit{UserID: "u1", Feature: "audience", CreateLimit: 9})
	require.NoError(t, err)
	assert.Equal(t, first, second, "same (user, feature) keeps its ledger id")

	check, err := l.CheckLimit(ctx, "u1", "audience", models.OpCreate)
	require.NoError(t, err)
	assert.Equal(t, int64(9), check.Limit)
}

func TestMappings(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.db.Create(&ResourceMapping{
		ID: "m1", UserID: "u1", AccountID: "accounts/1", PropertyID: "properties/123",
	}).Error)

	rows, err := l.Mappings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "properties/123", rows[0].PropertyID)

	none, err := l.Mappings(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
