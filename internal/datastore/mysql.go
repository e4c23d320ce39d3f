package datastore

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/mriscan/braintumor-go/internal/errors"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
}

// Open connects to MySQL and migrates the schema.
func (store *MySQLStore) Open() error {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       store.target.DSN,
		DefaultStringSize:         255,
		SkipInitializeWithVersion: false,
	}), store.gormConfig())
	if err != nil {
		return dbError(err, "open_mysql", errors.PriorityCritical)
	}
	store.DB = db

	if err := store.applyPool(); err != nil {
		return err
	}

	return performAutoMigration(db, "MySQL", "mysql")
}

// Close releases the connection pool
func (store *MySQLStore) Close() error {
	return store.closeDB()
}
