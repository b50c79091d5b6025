package database

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestReplicaIdentityFull(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`ALTER TABLE "team_members" REPLICA IDENTITY FULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, ReplicaIdentityFull(db, FullChangeTables...))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplicaIdentityFullReportsTable(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`ALTER TABLE "team_members"`).WillReturnError(errors.New("must be owner of table"))

	err := ReplicaIdentityFull(db, "team_members")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "team_members")
}
