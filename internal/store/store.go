package store

import (
	"gorm.io/gorm"
)

// Store is the data access layer for jobs, tasks, workflow steps and
// activity records. It carries no business rules: callers get create,
// sparse-update-by-id and query-by-predicate operations, each update
// returning the post-update record.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of a gorm handle
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for composed queries
func (s *Store) DB() *gorm.DB {
	return s.db
}
