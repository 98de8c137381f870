package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/database"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/internal/repository/storetest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "ledger.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func TestGormStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return repository.NewGormStore(openSQLite(t))
	})
}

func TestGormStoreKeepsOneGrantRowPerFeature(t *testing.T) {
	db := openSQLite(t)
	s := repository.NewGormStore(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			return tx.PutGrant(ctx, "acc-1", "analytics", testTime.Add(time.Duration(i)*time.Hour))
		}))
	}

	var count int64
	require.NoError(t, db.Model(&model.FeatureGrant{}).
		Where("account_id = ? AND feature = ?", "acc-1", "analytics").
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTransactionRepositoryLookup(t *testing.T) {
	db := openSQLite(t)
	repo := repository.NewTransactionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, &model.UnitTransaction{
		TransactionNo: "UNT-x", AccountID: "acc-1", Type: model.TransactionTypeEarn, Amount: 2, BalanceAfter: 2,
	}))

	trans, err := repo.GetByTransactionNo(ctx, "UNT-x")
	require.NoError(t, err)
	require.NotNil(t, trans)
	assert.Equal(t, int64(2), trans.Amount)

	missing, err := repo.GetByTransactionNo(ctx, "UNT-none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
