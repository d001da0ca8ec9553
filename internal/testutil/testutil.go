// Package testutil provides throwaway database and cache backends for
// service tests: an on-disk SQLite file per test and an in-process redis.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"performa-system/internal/database"
	"performa-system/internal/database/models"
)

func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)", filepath.Join(t.TempDir(), "test.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// SQLite allows a single writer; one pooled connection keeps concurrent
	// test transactions from tripping over each other.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func SeedUser(t *testing.T, db *gorm.DB, email, name, dept, role string) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: name, Dept: dept, Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

func SeedKra(t *testing.T, db *gorm.DB, kra models.KRA) *models.KRA {
	t.Helper()
	require.NoError(t, db.Create(&kra).Error)
	return &kra
}
