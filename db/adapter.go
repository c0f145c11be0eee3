package db

import (
	"fmt"

	"github.com/kasuganosora/battlesim/config"
	dbmysql "github.com/kasuganosora/battlesim/db/mysql"
	dbsqlite "github.com/kasuganosora/battlesim/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
	// ModeMemory is a private in-memory SQLite database.
	ModeMemory = "memory"
	// ModeNone disables report persistence; Open returns a nil *gorm.DB.
	ModeNone = "none"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMemory:
		return dbsqlite.OpenMemory()
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	case ModeNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
