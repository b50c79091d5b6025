package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/parium/parium-api/internal/models"
)

// Connect opens the Postgres connection and migrates every model.
func Connect(dsn string, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("database connection established")

	log.Info("running migrations")
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := ReplicaIdentityFull(db, FullChangeTables...); err != nil {
		return nil, err
	}
	return db, nil
}

// FullChangeTables are the realtime tables whose DELETE events must carry the
// whole old row. The team cache is keyed by company_id, which Postgres leaves
// out of old_record under the default replica identity.
var FullChangeTables = []string{"team_members"}

// ReplicaIdentityFull makes logical replication publish complete old rows
// for tables.
func ReplicaIdentityFull(db *gorm.DB, tables ...string) error {
	for _, table := range tables {
		if err := db.Exec("ALTER TABLE ? REPLICA IDENTITY FULL", clause.Table{Name: table}).Error; err != nil {
			return fmt.Errorf("replica identity %s: %w", table, err)
		}
	}
	return nil
}
