package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize opens the SQLite database at dbPath, creating the parent
// directory if needed, and migrates the schema. The returned handle is the
// one shared connection; callers inject it rather than reaching for a global.
func Initialize(dbPath string) (*gorm.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	log.Println("Database connected successfully")

	if err := cleanupDuplicatePriceLinks(db); err != nil {
		return nil, fmt.Errorf("pre-migration cleanup: %w", err)
	}

	// Auto-migrate the schema
	err = db.AutoMigrate(
		&models.Card{},
		&models.PriceLink{},
		&models.PriceSnapshot{},
		&models.CollectionEntry{},
		&models.JobHistory{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto-migration: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("data migrations: %w", err)
	}

	log.Println("Database migration completed")
	return db, nil
}

// InitializeInMemory opens a fresh in-memory database with the full schema.
// Test helper; each call gets an isolated database.
func InitializeInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(
		&models.Card{},
		&models.PriceLink{},
		&models.PriceSnapshot{},
		&models.CollectionEntry{},
		&models.JobHistory{},
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}
