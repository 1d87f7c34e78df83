// Package db manages the history store connection.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	libsql "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oxhq/replx/models"
)

// dsnKind distinguishes the two store backends a DSN can name.
type dsnKind int

const (
	dsnFile dsnKind = iota
	dsnLibsql
)

// remoteSchemes are the URL prefixes handled by the libsql
// connector; anything else is treated as a local SQLite file.
var remoteSchemes = []string{"libsql://", "http://", "https://"}

func classifyDSN(dsn string) dsnKind {
	for _, scheme := range remoteSchemes {
		if strings.HasPrefix(dsn, scheme) {
			return dsnLibsql
		}
	}
	return dsnFile
}

// Connect opens the history store named by dsn (a SQLite file path
// or a libsql URL) and migrates its schema.
func Connect(dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{}
	if debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}

	dialector, err := openDialector(dsn)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening history store %s: %w", dsn, err)
	}

	// Referential integrity is off by default in SQLite; turn it on
	// so future relations against runs behave.
	if sqlDB, derr := gdb.DB(); derr == nil {
		sqlDB.Exec("PRAGMA foreign_keys = ON")
	}

	if err := Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrating history store: %w", err)
	}
	return gdb, nil
}

// openDialector builds the GORM dialector for either backend.
func openDialector(dsn string) (gorm.Dialector, error) {
	switch classifyDSN(dsn) {
	case dsnLibsql:
		opts := []libsql.Option{}
		if token := os.Getenv("REPLX_LIBSQL_AUTH_TOKEN"); token != "" {
			opts = append(opts, libsql.WithAuthToken(token))
		}
		connector, err := libsql.NewConnector(dsn, opts...)
		if err != nil {
			return nil, fmt.Errorf("libsql connector for %s: %w", dsn, err)
		}
		return sqlite.New(sqlite.Config{
			DriverName: "libsql",
			DSN:        dsn,
			Conn:       sql.OpenDB(connector),
		}), nil
	default:
		// A fresh default location may not exist yet.
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("preparing history directory: %w", err)
		}
		return sqlite.Open(dsn), nil
	}
}

// Migrate runs database migrations.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.Run{})
}
