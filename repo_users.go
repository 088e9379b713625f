package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRepository is the bun backed CredentialStore.
type UserRepository struct {
	repository.Repository[*User]
	db bun.IDB
}

var _ CredentialStore = (*UserRepository)(nil)

func NewUsersRepository(db *bun.DB) *UserRepository {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &UserRepository{
		Repository: repo,
		db:         db,
	}
}

// withDB returns a copy of the repository running queries on db.
func (a *UserRepository) withDB(db bun.IDB) *UserRepository {
	return &UserRepository{
		Repository: a.Repository,
		db:         db,
	}
}

func (a *UserRepository) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateUserTx(ctx, a.db, user)
}

// CreateUserTx inserts user. The existence check gives a clean error in the
// common case, the unique index on email settles concurrent registrations.
func (a *UserRepository) CreateUserTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	if _, err := a.FindByEmailTx(ctx, tx, user.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !IsUserNotFound(err) {
		return nil, err
	}

	created, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	return created, nil
}

func (a *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *UserRepository) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapUserLookupError(err)
	}
	return record, nil
}

func (a *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *UserRepository) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapUserLookupError(err)
	}
	return record, nil
}

func (a *UserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return a.UpdatePasswordHashTx(ctx, a.db, id, hash)
}

func (a *UserRepository) UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error {
	res, err := tx.NewUpdate().
		Table("users").
		Set("password_hash = ?", hash).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

func mapUserLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return ErrUserNotFound
	}
	return err
}
