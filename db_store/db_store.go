package db_store

import (
	"embed"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migrate_mysql "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const MIGRATIONS_TABLE = "skylog_schema_migrations"

//go:embed sql/*.sql
var migrationsFS embed.FS

// SkylogDBStore holds flights, photos and zones.
type SkylogDBStore struct {
	logger *logrus.Logger
	db     *sqlx.DB
	dbName string
}

func (st *SkylogDBStore) Close() error {
	return st.db.Close()
}

// Migrate brings the schema up to date. The migrations built into the
// binary are used unless 'migratePath' names a directory to read them from.
func (st *SkylogDBStore) Migrate(migratePath string) error {
	migrateConfig := &migrate_mysql.Config{
		MigrationsTable: MIGRATIONS_TABLE,
		DatabaseName:    st.dbName,
	}

	dbDriver, err := migrate_mysql.WithInstance(st.db.DB, migrateConfig)
	if err != nil {
		return err
	}

	var m *migrate.Migrate

	if migratePath == "" {
		st.logger.Infof("running built-in db migrations")

		src, err := iofs.New(migrationsFS, "sql")
		if err != nil {
			return fmt.Errorf("failed to read built-in migrations: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, st.dbName, dbDriver)
		if err != nil {
			return fmt.Errorf("failed to set up db migration: %w", err)
		}
	} else {
		st.logger.Infof("running db migrations from '%s'", migratePath)

		if !strings.HasPrefix(migratePath, "file://") {
			migratePath = "file://" + migratePath
		}
		m, err = migrate.NewWithDatabaseInstance(migratePath, st.dbName, dbDriver)
		if err != nil {
			return fmt.Errorf("failed to set up db migration: %w", err)
		}
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run db migration: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		st.logger.Infof("db schema at version %d (dirty=%t)", version, dirty)
	}

	return nil
}

func NewSkylogDBStore(config DBConfig, logger *logrus.Logger) (*SkylogDBStore, error) {
	db, err := sqlx.Connect("mysql", config.AsDSN())
	if err != nil {
		return nil, err
	}

	if config.MaxPool > 0 {
		db.SetMaxOpenConns(config.MaxPool)
	}

	return NewSkylogDBStoreFromDB(db, config.Db, logger), nil
}

// NewSkylogDBStoreFromDB wraps an existing connection.
func NewSkylogDBStoreFromDB(db *sqlx.DB, dbName string, logger *logrus.Logger) *SkylogDBStore {
	return &SkylogDBStore{
		logger: logger,
		db:     db,
		dbName: dbName,
	}
}
