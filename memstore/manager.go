// Package memstore is an in-memory RepositoryManager for tests, demos and
// single process deployments. Transactions are serialized and rolled back
// from an undo journal.
package memstore

import (
	"context"
	"sync"

	auth "github.com/trialbridge/go-auth"
)

type Manager struct {
	txMu        sync.Mutex
	users       *Users
	resets      *Resets
	revocations *Revocations
}

var _ auth.RepositoryManager = (*Manager)(nil)

func New() *Manager {
	return &Manager{
		users:       NewUsers(),
		resets:      NewResets(),
		revocations: NewRevocations(),
	}
}

func (m *Manager) Users() auth.CredentialStore {
	return m.users
}

func (m *Manager) PasswordResets() auth.ResetCodeStore {
	return m.resets
}

func (m *Manager) Revocations() auth.RevocationStore {
	return m.revocations
}

// RunInTx runs fn while holding the transaction lock. Writes made through
// the stores handed to fn are undone if fn returns an error or panics.
func (m *Manager) RunInTx(ctx context.Context, fn func(ctx context.Context, tx auth.RepositoryManager) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &txManager{root: m, journal: &journal{}}
	defer func() {
		if r := recover(); r != nil {
			tx.journal.rollback()
			panic(r)
		}
		if err != nil {
			tx.journal.rollback()
		}
	}()

	return fn(ctx, tx)
}

type txManager struct {
	root    *Manager
	journal *journal
}

func (t *txManager) Users() auth.CredentialStore {
	return &txUsers{store: t.root.users, journal: t.journal}
}

func (t *txManager) PasswordResets() auth.ResetCodeStore {
	return &txResets{store: t.root.resets, journal: t.journal}
}

func (t *txManager) Revocations() auth.RevocationStore {
	return &txRevocations{store: t.root.revocations, journal: t.journal}
}

// RunInTx joins the enclosing transaction.
func (t *txManager) RunInTx(ctx context.Context, fn func(ctx context.Context, tx auth.RepositoryManager) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, t)
}

// journal collects undo steps in the order writes happened.
type journal struct {
	undo []func()
}

func (j *journal) record(undo func()) {
	if undo != nil {
		j.undo = append(j.undo, undo)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}
