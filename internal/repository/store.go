package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/database"
)

// Repositories groups the repositories that share one Querier, so everything
// built from a tx handle takes part in that tx.
type Repositories struct {
	Applications *ApplicationRepository
	Values       *ApplicationValuesRepository
	Steps        *ApprovalStepsRepository
	Users        *UserRepository
	Audit        *ApprovalAuditRepository
}

// NewRepositories binds every repository to q.
func NewRepositories(q database.Querier) *Repositories {
	return &Repositories{
		Applications: NewApplicationRepository(q),
		Values:       NewApplicationValuesRepository(q),
		Steps:        NewApprovalStepsRepository(q),
		Users:        NewUserRepository(q),
		Audit:        NewApprovalAuditRepository(q),
	}
}

// Store hands out repositories bound to the pool or to a transaction.
type Store struct {
	db   *database.DB
	read *Repositories
}

// NewStore creates a Store over db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, read: NewRepositories(db)}
}

// InTx runs fn with repositories bound to a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(*Repositories) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(NewRepositories(tx))
	})
}

// Read returns repositories bound to the pool.
func (s *Store) Read() *Repositories {
	return s.read
}
