package storage

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	platerr "voicepipe-server-go/internal/platform/errors"
)

// Open opens (creating if needed) the sqlite database at dsn and migrates
// the session schema.
func Open(dsn string) (*gorm.DB, error) {
	if dir := filepath.Dir(dsn); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, platerr.Wrap(platerr.KindStorage, "open", "create database directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, platerr.Wrap(platerr.KindStorage, "open", "open sqlite database", err)
	}

	if err := db.AutoMigrate(&SessionResult{}); err != nil {
		return nil, platerr.Wrap(platerr.KindStorage, "migrate", "migrate session schema", err)
	}
	return db, nil
}
