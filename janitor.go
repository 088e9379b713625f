package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultJanitorInterval is how often expired records are purged.
const DefaultJanitorInterval = 10 * time.Minute

// Janitor periodically deletes reset requests and revocations that can no
// longer affect any decision.
type Janitor struct {
	repo     RepositoryManager
	interval time.Duration
	logger   Logger
	clock    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor running every interval.
func NewJanitor(repo RepositoryManager, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &Janitor{
		repo:     repo,
		interval: interval,
		logger:   defLogger{},
		clock:    time.Now,
	}
}

func (j *Janitor) WithLogger(logger Logger) *Janitor {
	if logger != nil {
		j.logger = logger
	}
	return j
}

func (j *Janitor) WithClock(clock func() time.Time) *Janitor {
	if clock != nil {
		j.clock = clock
	}
	return j
}

// RunOnce executes one purge cycle. Both purges are attempted even if the
// first fails.
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.clock().UTC()
	var errs []error

	resets, err := j.repo.PasswordResets().PurgeExpired(ctx, now)
	if err != nil {
		j.logger.Error("purge password resets failed: %v", err)
		errs = append(errs, err)
	} else if resets > 0 {
		j.logger.Info("purged %d password reset requests", resets)
	}

	revoked, err := j.repo.Revocations().PurgeExpired(ctx, now)
	if err != nil {
		j.logger.Error("purge revoked tokens failed: %v", err)
		errs = append(errs, err)
	} else if revoked > 0 {
		j.logger.Info("purged %d revoked tokens", revoked)
	}

	return errors.Join(errs...)
}

// Start runs a cycle immediately and then on every tick until ctx is done or
// Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.run(ctx)
}

// Stop stops the janitor and waits for the running cycle.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("janitor cycle failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("janitor cycle failed: %v", err)
			}
		}
	}
}
