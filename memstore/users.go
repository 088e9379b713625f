package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	auth "github.com/trialbridge/go-auth"
)

// Users is an in-memory CredentialStore indexed by id and normalized email.
type Users struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*auth.User
	byEmail map[string]uuid.UUID
}

var _ auth.CredentialStore = (*Users)(nil)

func NewUsers() *Users {
	return &Users{
		byID:    make(map[uuid.UUID]*auth.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *Users) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	created, _, err := s.create(ctx, user)
	return created, err
}

func (s *Users) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *Users) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *Users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := s.updatePasswordHash(ctx, id, hash)
	return err
}

// Len returns the number of stored users.
func (s *Users) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Users) create(ctx context.Context, user *auth.User) (*auth.User, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	record := cloneUser(user)
	record.Email = auth.NormalizeEmail(record.Email)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	record.UpdatedAt = &now

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[record.Email]; exists {
		return nil, nil, auth.ErrDuplicateEmail
	}
	if _, exists := s.byID[record.ID]; exists {
		return nil, nil, auth.ErrDuplicateEmail
	}

	s.byID[record.ID] = record
	s.byEmail[record.Email] = record.ID

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.byID, record.ID)
		delete(s.byEmail, record.Email)
	}

	return cloneUser(record), undo, nil
}

func (s *Users) updatePasswordHash(ctx context.Context, id uuid.UUID, hash string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}

	previousHash, previousUpdated := user.PasswordHash, user.UpdatedAt
	now := time.Now().UTC()
	user.PasswordHash = hash
	user.UpdatedAt = &now

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if u, ok := s.byID[id]; ok {
			u.PasswordHash = previousHash
			u.UpdatedAt = previousUpdated
		}
	}

	return undo, nil
}

func cloneUser(u *auth.User) *auth.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

type txUsers struct {
	store   *Users
	journal *journal
}

func (t *txUsers) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	created, undo, err := t.store.create(ctx, user)
	t.journal.record(undo)
	return created, err
}

func (t *txUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return t.store.FindByEmail(ctx, email)
}

func (t *txUsers) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return t.store.FindByID(ctx, id)
}

func (t *txUsers) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	undo, err := t.store.updatePasswordHash(ctx, id, hash)
	t.journal.record(undo)
	return err
}
