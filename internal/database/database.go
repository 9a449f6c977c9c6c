package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tariel-x/affiliates/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize opens the sqlite database at dbPath and migrates every model.
// dbPath may be a plain file path or a sqlite URI such as
// "file:test?mode=memory&cache=shared".
func Initialize(dbPath string) (*gorm.DB, error) {
	if !strings.HasPrefix(dbPath, "file:") && dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite serializes writers anyway; a single connection keeps
	// in-memory databases shared and avoids SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Member{},
		&models.InviteRecord{},
		&models.AttributionEntry{},
		&models.PushSubscription{},
		&models.RolloverState{},
		&models.ChannelMessage{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}
