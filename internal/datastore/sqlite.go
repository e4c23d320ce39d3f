package datastore

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mriscan/braintumor-go/internal/errors"
)

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
}

// sqliteDSN enables foreign keys on every pooled connection.
func sqliteDSN(path string) string {
	params := "_foreign_keys=1"
	if path != sqliteMemory {
		params += "&_busy_timeout=5000&_journal_mode=WAL"
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// Open connects to the SQLite database, creating the parent directory of a file database.
func (store *SQLiteStore) Open() error {
	path := store.target.DSN
	if !store.target.InMemory() {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.New(err).
					Component("datastore").
					Category(errors.CategoryFileIO).
					Context("operation", "create_database_dir").
					Context("path", dir).
					Build()
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), store.gormConfig())
	if err != nil {
		return dbError(err, "open_sqlite", errors.PriorityCritical, "path", path)
	}
	store.DB = db

	if store.target.InMemory() {
		// every connection to :memory: is a separate database
		sqlDB, err := db.DB()
		if err != nil {
			return dbError(err, "get_sql_db", errors.PriorityHigh)
		}
		sqlDB.SetMaxOpenConns(1)
	} else if err := store.applyPool(); err != nil {
		return err
	}

	return performAutoMigration(db, "SQLite", path)
}

// Close releases the connection pool
func (store *SQLiteStore) Close() error {
	return store.closeDB()
}
