package bootstrap

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LingByte/LingMeet/pkg/store"
)

type Options struct {
	Driver      string
	DSN         string
	AutoMigrate bool // create or update the meetings table
	Debug       bool // log every statement
}

// SetupDatabase opens the meeting history database. Only sqlite is built in.
func SetupDatabase(w io.Writer, opts *Options) (*gorm.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "sqlite"
	}
	if driver != "sqlite" {
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	dsn := opts.DSN
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	level := gormlogger.Warn
	if opts.Debug {
		level = gormlogger.Info
	}
	dbLogger := gormlogger.New(log.New(w, "\r\n", log.LstdFlags), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway
	sqlDB.SetMaxOpenConns(1)

	if opts.AutoMigrate {
		if err := store.NewMeetingStore(db, nil).Migrate(); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}
