package auth

import (
	"context"

	"github.com/uptrace/bun"
)

type mngr struct {
	db             *bun.DB
	tx             bun.IDB
	users          *UserRepository
	passwordResets *PasswordResetRepository
	revocations    *RevocationRepository
}

// NewRepositoryManager returns the bun backed RepositoryManager.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		passwordResets: NewPasswordResetRepository(db),
		revocations:    NewRevocationRepository(db),
	}
}

// RunInTx runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (m *mngr) RunInTx(ctx context.Context, fn func(ctx context.Context, tx RepositoryManager) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if m.tx != nil {
		return fn(ctx, m)
	}

	return m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, m.bind(tx))
	})
}

func (m *mngr) bind(tx bun.IDB) *mngr {
	return &mngr{
		db:             m.db,
		tx:             tx,
		users:          m.users.withDB(tx),
		passwordResets: m.passwordResets.withDB(tx),
		revocations:    m.revocations.withDB(tx),
	}
}

func (m *mngr) Users() CredentialStore {
	return m.users
}

func (m *mngr) PasswordResets() ResetCodeStore {
	return m.passwordResets
}

func (m *mngr) Revocations() RevocationStore {
	return m.revocations
}
