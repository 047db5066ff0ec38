// Package store is the transition-safe persistence layer for sessions, their
// series, attendees and recordings. Cross-request exclusion relies on row
// locks and conditional updates only, never on in-process mutexes, since
// several instances share the same database.
package store

import (
	"context"
	"errors"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"gorm.io/gorm"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the time source used for stamping rows.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Now() time.Time {
	return s.now().UTC()
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(format, args...)
	}
	return err
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Store) tableOf(model any) (string, error) {
	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(model); err != nil {
		return "", err
	}
	return stmt.Schema.Table, nil
}
