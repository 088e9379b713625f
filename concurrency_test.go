package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/trialbridge/go-auth"
	"github.com/trialbridge/go-auth/memstore"
)

const workers = 8

func backends(t *testing.T) map[string]func() auth.RepositoryManager {
	return map[string]func() auth.RepositoryManager{
		"sqlite":   func() auth.RepositoryManager { return newSQLiteRepo(t) },
		"memstore": func() auth.RepositoryManager { return memstore.New() },
	}
}

func TestConcurrentResetHasSingleWinner(t *testing.T) {
	for name, newRepo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, newRepo(), false)

			_, err := svc.auther.Register(ctx, "alice@x.com", "pw123", auth.UserTypePatient)
			require.NoError(t, err)
			_, err = svc.auther.ForgotPassword(ctx, "alice@x.com")
			require.NoError(t, err)
			code := svc.deliverer.last("alice@x.com")

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes []string
				rejected  int
			)

			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					password := fmt.Sprintf("newpw-%d", i)
					err := svc.auther.ResetPassword(ctx, "alice@x.com", code, password)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes = append(successes, password)
					case auth.IsInvalidOrExpiredCode(err):
						rejected++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			require.Len(t, successes, 1)
			assert.Equal(t, workers-1, rejected)

			_, err = svc.auther.Login(ctx, "alice@x.com", successes[0])
			assert.NoError(t, err)
		})
	}
}

func TestConcurrentForgotPasswordLeavesOneActiveCode(t *testing.T) {
	for name, newRepo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, newRepo(), false)

			_, err := svc.auther.Register(ctx, "alice@x.com", "pw123", auth.UserTypePatient)
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.auther.ForgotPassword(ctx, "alice@x.com")
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			svc.deliverer.mu.Lock()
			codes := append([]string(nil), svc.deliverer.codes["alice@x.com"]...)
			svc.deliverer.mu.Unlock()
			require.Len(t, codes, workers)

			accepted := 0
			for _, code := range codes {
				if err := svc.auther.ResetPassword(ctx, "alice@x.com", code, "newpw"); err == nil {
					accepted++
				} else {
					assert.True(t, auth.IsInvalidOrExpiredCode(err))
				}
			}
			assert.Equal(t, 1, accepted)
		})
	}
}

func TestConcurrentRegisterSameEmail(t *testing.T) {
	for name, newRepo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, newRepo(), false)

			var (
				wg         sync.WaitGroup
				mu         sync.Mutex
				created    int
				duplicates int
			)

			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.auther.Register(ctx, "Race@X.com", "pw", auth.UserTypeResearcher)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						created++
					case auth.IsDuplicateEmail(err):
						duplicates++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, created)
			assert.Equal(t, workers-1, duplicates)
		})
	}
}
