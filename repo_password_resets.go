package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// PasswordResetRepository is the bun backed ResetCodeStore. The table is
// keyed by email so supersession is a single upsert.
type PasswordResetRepository struct {
	db bun.IDB
}

var _ ResetCodeStore = (*PasswordResetRepository)(nil)

func NewPasswordResetRepository(db bun.IDB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) withDB(db bun.IDB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) Upsert(ctx context.Context, reset *PasswordReset) error {
	reset.Email = NormalizeEmail(reset.Email)
	reset.Consumed = false
	reset.ConsumedAt = nil

	_, err := r.db.NewInsert().
		Model(reset).
		On("CONFLICT (email) DO UPDATE").
		Set("code_hash = EXCLUDED.code_hash").
		Set("expires_at = EXCLUDED.expires_at").
		Set("consumed = EXCLUDED.consumed").
		Set("consumed_at = NULL").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)

	return err
}

func (r *PasswordResetRepository) Consume(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*PasswordReset)(nil)).
		Set("consumed = ?", true).
		Set("consumed_at = ?", now).
		Where("email = ?", NormalizeEmail(email)).
		Where("code_hash = ?", codeHash).
		Where("consumed = ?", false).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *PasswordResetRepository) Get(ctx context.Context, email string) (*PasswordReset, error) {
	record := &PasswordReset{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResetNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *PasswordResetRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*PasswordReset)(nil)).
		Where("consumed = ? OR expires_at <= ?", true, now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
