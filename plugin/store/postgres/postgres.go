// Package postgres registers the postgres store backend.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/ontology/config"
	"github.com/chirino/ontology/model"
	"github.com/chirino/ontology/plugin/store/gormstore"
	registrycomponent "github.com/chirino/ontology/registry/component"
	registrymigrate "github.com/chirino/ontology/registry/migrate"
	registrystore "github.com/chirino/ontology/registry/store"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.Store, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			return gormstore.New(db, cfg, translateError), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }

func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "" && cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	// Host-registered component tables; the Domain table ships in the core
	// schema above.
	for _, proto := range registrycomponent.Prototypes() {
		if proto.ComponentType() == model.DomainComponentType {
			continue
		}
		if err := db.WithContext(ctx).AutoMigrate(proto); err != nil {
			return fmt.Errorf("migration: component table %s: %w", proto.ComponentType(), err)
		}
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// translateError maps postgres constraint breaches onto the store error
// taxonomy.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case "23505":
		return &registrystore.ConflictError{Resource: pgErr.TableName, Detail: pgErr.ConstraintName}
	case "23503", "23514":
		return &registrystore.IntegrityError{Detail: pgErr.Message}
	}
	return nil
}
