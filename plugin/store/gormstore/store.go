// Package gormstore implements the relational store shared by the postgres
// and sqlite backends. The backend plugins open the GORM connection, run the
// schema migration, and supply a driver-specific constraint translator; all
// query and propagation logic lives here.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/ontology/config"
	registrystore "github.com/chirino/ontology/registry/store"
	"gorm.io/gorm"
)

// Translate converts a driver-level error into one of the registry/store
// error types, or returns nil when the error is not a recognized constraint
// breach.
type Translate func(err error) error

// Store is the GORM-backed registry/store.Store implementation.
type Store struct {
	db           *gorm.DB
	strictCycles bool
	translate    Translate
}

// New wraps an open GORM connection.
func New(db *gorm.DB, cfg *config.Config, translate Translate) *Store {
	strict := true
	if cfg != nil {
		strict = cfg.StrictCycles
	}
	return &Store{db: db, strictCycles: strict, translate: translate}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// tx runs fn inside one transaction with a propagator bound to it, so the
// mutation and its entitlement delta commit or roll back together.
func (s *Store) tx(ctx context.Context, fn func(tx *gorm.DB, p *propagator) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, newPropagator(tx))
	})
	return s.storeErr(err)
}

// storeErr maps driver constraint errors onto the registry/store taxonomy.
// Errors that are already typed pass through unchanged.
func (s *Store) storeErr(err error) error {
	if err == nil {
		return nil
	}
	var (
		notFound  *registrystore.NotFoundError
		domainV   *registrystore.DomainViolationError
		cycleV    *registrystore.CycleViolationError
		conflict  *registrystore.ConflictError
		validate  *registrystore.ValidationError
		integrity *registrystore.IntegrityError
	)
	if errors.As(err, &notFound) || errors.As(err, &domainV) || errors.As(err, &cycleV) ||
		errors.As(err, &conflict) || errors.As(err, &validate) || errors.As(err, &integrity) {
		return err
	}
	if s.translate != nil {
		if terr := s.translate(err); terr != nil {
			return terr
		}
	}
	return err
}

func notFoundErr(resource string, id any) error {
	return &registrystore.NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
