package db

import (
  "context"

  "gorm.io/gorm"
)

// Transactor runs fn inside one database transaction. A non-nil error from fn
// rolls back every write made through tx.
type Transactor interface {
  WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormTransactor struct {
  db          *gorm.DB
}

func NewTransactor(db *gorm.DB) Transactor {
  return &gormTransactor{db: db}
}

func (t *gormTransactor) WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
  return t.db.WithContext(ctx).Transaction(fn)
}
