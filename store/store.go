// store/store.go
package store

import (
	"context"
	"errors"

	"pact-oracle/utils"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// Store is the transactional boundary around the mirror tables. Every
// multi-row change goes through Transaction.
type Store struct {
	DB *gorm.DB
	// NewJoinCode generates a candidate join code for a pact name.
	NewJoinCode func(name string) string
}

func New(db *gorm.DB) *Store {
	return &Store{DB: db, NewJoinCode: utils.NewJoinCode}
}

// Transaction runs fn against a Store bound to one database transaction.
// Returning an error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, NewJoinCode: s.NewJoinCode})
	})
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// chunks splits keys for IN (...) queries so large mirrors stay under
// driver parameter limits.
func chunks(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

const inChunk = 500
