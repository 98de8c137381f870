package database

import (
	"bytes"
	"path/filepath"
	"testing"

	"rewardledger/internal/config"
	"rewardledger/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "ledger.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	require.NoError(t, Migrate(db))

	for _, table := range []any{
		&model.UnitBalance{},
		&model.FeatureGrant{},
		&model.UnitTransaction{},
		&model.OutboxMessage{},
		&model.Subscription{},
	} {
		assert.True(t, db.Migrator().HasTable(table))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"}, zerolog.Nop())
	require.Error(t, err)
}

func TestDialectorDSNFallbacks(t *testing.T) {
	d, err := dialectorFor(&config.DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "h", Port: 3306, Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	d, err = dialectorFor(&config.DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}

func TestGormLogSkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "ledger.db"),
	}, zerolog.New(&buf))
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	require.NoError(t, Migrate(db))
	buf.Reset()

	var balance model.UnitBalance
	err = db.Where("account_id = ?", "nobody").First(&balance).Error
	require.Error(t, err)
	assert.Empty(t, buf.String())

	require.Error(t, db.Exec("SELECT * FROM missing_table").Error)
	assert.Contains(t, buf.String(), "missing_table")
	assert.Contains(t, buf.String(), `"component":"gorm"`)
}
