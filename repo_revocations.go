package auth

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// RevocationRepository is the bun backed RevocationStore.
type RevocationRepository struct {
	db bun.IDB
}

var _ RevocationStore = (*RevocationRepository)(nil)

func NewRevocationRepository(db bun.IDB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

func (r *RevocationRepository) withDB(db bun.IDB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Revoke adds the token to the deny-list. Revoking twice is a no-op.
func (r *RevocationRepository) Revoke(ctx context.Context, token *RevokedToken) error {
	_, err := r.db.NewInsert().
		Model(token).
		On("CONFLICT (jti) DO NOTHING").
		Exec(ctx)
	return err
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return r.db.NewSelect().
		Model((*RevokedToken)(nil)).
		Where("?TableAlias.jti = ?", tokenID).
		Exists(ctx)
}

func (r *RevocationRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RevokedToken)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
