// Package testutil holds helpers shared by the test suites.
package testutil

import (
	"fmt"

	"docvision-service/pkg/database"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenInMemoryDB opens a private in-memory SQLite database with every table migrated
func OpenInMemoryDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
