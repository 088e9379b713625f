package memstore

import (
	"context"
	"sync"
	"time"

	auth "github.com/trialbridge/go-auth"
)

// Resets is an in-memory ResetCodeStore holding one request per email.
type Resets struct {
	mu      sync.Mutex
	byEmail map[string]*auth.PasswordReset
}

var _ auth.ResetCodeStore = (*Resets)(nil)

func NewResets() *Resets {
	return &Resets{byEmail: make(map[string]*auth.PasswordReset)}
}

func (s *Resets) Upsert(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := s.upsert(ctx, reset)
	return err
}

// Consume flips the request for email to consumed under the store lock, so
// at most one caller observes true for a given request.
func (s *Resets) Consume(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	ok, _, err := s.consume(ctx, email, codeHash, now)
	return ok, err
}

func (s *Resets) Get(ctx context.Context, email string) (*auth.PasswordReset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reset, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrResetNotFound
	}
	return cloneReset(reset), nil
}

func (s *Resets) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for email, reset := range s.byEmail {
		if reset.Consumed || !reset.ExpiresAt.After(now) {
			delete(s.byEmail, email)
			purged++
		}
	}
	return purged, nil
}

func (s *Resets) upsert(ctx context.Context, reset *auth.PasswordReset) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := cloneReset(reset)
	record.Email = auth.NormalizeEmail(record.Email)
	record.Consumed = false
	record.ConsumedAt = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, had := s.byEmail[record.Email]
	s.byEmail[record.Email] = record

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if had {
			s.byEmail[record.Email] = previous
			return
		}
		delete(s.byEmail, record.Email)
	}

	return undo, nil
}

func (s *Resets) consume(ctx context.Context, email, codeHash string, now time.Time) (bool, func(), error) {
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reset, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok || reset.Consumed || !reset.ExpiresAt.After(now) || reset.CodeHash != codeHash {
		return false, nil, nil
	}

	consumedAt := now
	reset.Consumed = true
	reset.ConsumedAt = &consumedAt

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		reset.Consumed = false
		reset.ConsumedAt = nil
	}

	return true, undo, nil
}

func cloneReset(r *auth.PasswordReset) *auth.PasswordReset {
	if r == nil {
		return nil
	}
	c := *r
	if r.ConsumedAt != nil {
		at := *r.ConsumedAt
		c.ConsumedAt = &at
	}
	return &c
}

type txResets struct {
	store   *Resets
	journal *journal
}

func (t *txResets) Upsert(ctx context.Context, reset *auth.PasswordReset) error {
	undo, err := t.store.upsert(ctx, reset)
	t.journal.record(undo)
	return err
}

func (t *txResets) Consume(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	ok, undo, err := t.store.consume(ctx, email, codeHash, now)
	t.journal.record(undo)
	return ok, err
}

func (t *txResets) Get(ctx context.Context, email string) (*auth.PasswordReset, error) {
	return t.store.Get(ctx, email)
}

func (t *txResets) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return t.store.PurgeExpired(ctx, now)
}
