package memstore

import (
	"context"
	"sync"
	"time"

	auth "github.com/trialbridge/go-auth"
)

// Revocations is an in-memory RevocationStore.
type Revocations struct {
	mu    sync.RWMutex
	byJTI map[string]*auth.RevokedToken
}

var _ auth.RevocationStore = (*Revocations)(nil)

func NewRevocations() *Revocations {
	return &Revocations{byJTI: make(map[string]*auth.RevokedToken)}
}

func (s *Revocations) Revoke(ctx context.Context, token *auth.RevokedToken) error {
	_, err := s.revoke(ctx, token)
	return err
}

func (s *Revocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byJTI[tokenID]
	return ok, nil
}

func (s *Revocations) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for jti, token := range s.byJTI {
		if !token.ExpiresAt.After(now) {
			delete(s.byJTI, jti)
			purged++
		}
	}
	return purged, nil
}

func (s *Revocations) revoke(ctx context.Context, token *auth.RevokedToken) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byJTI[token.TokenID]; exists {
		return nil, nil
	}

	record := *token
	s.byJTI[token.TokenID] = &record

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.byJTI, record.TokenID)
	}

	return undo, nil
}

type txRevocations struct {
	store   *Revocations
	journal *journal
}

func (t *txRevocations) Revoke(ctx context.Context, token *auth.RevokedToken) error {
	undo, err := t.store.revoke(ctx, token)
	t.journal.record(undo)
	return err
}

func (t *txRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return t.store.IsRevoked(ctx, tokenID)
}

func (t *txRevocations) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return t.store.PurgeExpired(ctx, now)
}
