// Package sqlite registers the sqlite store backend, for embedded and
// single-host deployments. Writes are serialized through one connection,
// matching the engine's single-writer model.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/ontology/config"
	"github.com/chirino/ontology/model"
	"github.com/chirino/ontology/plugin/store/gormstore"
	registrycomponent "github.com/chirino/ontology/registry/component"
	registrymigrate "github.com/chirino/ontology/registry/migrate"
	registrystore "github.com/chirino/ontology/registry/store"
	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.Store, error) {
			cfg := config.FromContext(ctx)
			db, err := open(cfg.DBURL)
			if err != nil {
				return nil, err
			}
			return gormstore.New(db, cfg, translateError), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

func open(dbURL string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn(dbURL)), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	// One writer connection; sqlite serializes writes anyway and a single
	// connection keeps transactions from tripping over SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// dsn appends foreign-key enforcement and a busy timeout to the URL's
// parameters, unless the URL already sets _foreign_keys.
func dsn(dbURL string) string {
	if strings.Contains(dbURL, "_foreign_keys") {
		return dbURL
	}
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + "_foreign_keys=on&_busy_timeout=5000"
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }

func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	for _, proto := range registrycomponent.Prototypes() {
		if proto.ComponentType() == model.DomainComponentType {
			continue
		}
		if err := db.WithContext(ctx).AutoMigrate(proto); err != nil {
			return fmt.Errorf("migration: component table %s: %w", proto.ComponentType(), err)
		}
	}
	log.Info("Sqlite schema migration complete")
	return nil
}

// translateError maps sqlite constraint breaches onto the store error
// taxonomy.
func translateError(err error) error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return nil
	}
	if serr.Code != sqlite3.ErrConstraint {
		return nil
	}
	switch serr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return &registrystore.ConflictError{Resource: "row", Detail: serr.Error()}
	default:
		return &registrystore.IntegrityError{Detail: serr.Error()}
	}
}
