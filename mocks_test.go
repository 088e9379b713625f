package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/trialbridge/go-auth"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// MockConfig implements auth.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetTokenExpiration() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConfig) GetResetCodeTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetResetCodeLength() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetExposeResetCode() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockConfig) GetPasswordHasher() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetBcryptCost() int {
	args := m.Called()
	return args.Int(0)
}

func newMockConfig(expose bool) *MockConfig {
	mockConfig := new(MockConfig)
	mockConfig.On("GetSigningKey").Return(testSigningKey).Maybe()
	mockConfig.On("GetTokenExpiration").Return(auth.DefaultTokenExpiration).Maybe()
	mockConfig.On("GetIssuer").Return("test-issuer").Maybe()
	mockConfig.On("GetAudience").Return([]string{"test:audience"}).Maybe()
	mockConfig.On("GetResetCodeTTL").Return(auth.DefaultResetCodeTTL).Maybe()
	mockConfig.On("GetResetCodeLength").Return(auth.DefaultResetCodeLength).Maybe()
	mockConfig.On("GetExposeResetCode").Return(expose).Maybe()
	mockConfig.On("GetPasswordHasher").Return(auth.HasherBcrypt).Maybe()
	mockConfig.On("GetBcryptCost").Return(bcrypt.MinCost).Maybe()
	return mockConfig
}

// MockRepositoryManager implements auth.RepositoryManager. RunInTx calls fn
// with the manager itself.
type MockRepositoryManager struct {
	mock.Mock
	users       auth.CredentialStore
	resets      auth.ResetCodeStore
	revocations auth.RevocationStore
}

func (m *MockRepositoryManager) Users() auth.CredentialStore {
	return m.users
}

func (m *MockRepositoryManager) PasswordResets() auth.ResetCodeStore {
	return m.resets
}

func (m *MockRepositoryManager) Revocations() auth.RevocationStore {
	return m.revocations
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, fn func(ctx context.Context, tx auth.RepositoryManager) error) error {
	return fn(ctx, m)
}

// MockUsers implements auth.CredentialStore
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, user)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

// MockResets implements auth.ResetCodeStore
type MockResets struct {
	mock.Mock
}

func (m *MockResets) Upsert(ctx context.Context, reset *auth.PasswordReset) error {
	args := m.Called(ctx, reset)
	return args.Error(0)
}

func (m *MockResets) Consume(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	args := m.Called(ctx, email, codeHash, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockResets) Get(ctx context.Context, email string) (*auth.PasswordReset, error) {
	args := m.Called(ctx, email)
	if r, ok := args.Get(0).(*auth.PasswordReset); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockResets) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockRevocations implements auth.RevocationStore
type MockRevocations struct {
	mock.Mock
}

func (m *MockRevocations) Revoke(ctx context.Context, token *auth.RevokedToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRevocations) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func newMockRepo() (*MockRepositoryManager, *MockUsers, *MockResets, *MockRevocations) {
	users := new(MockUsers)
	resets := new(MockResets)
	revocations := new(MockRevocations)
	return &MockRepositoryManager{
		users:       users,
		resets:      resets,
		revocations: revocations,
	}, users, resets, revocations
}

// recordingDeliverer captures reset codes instead of sending them.
type recordingDeliverer struct {
	mu    sync.Mutex
	codes map[string][]string
	err   error
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{codes: make(map[string][]string)}
}

func (d *recordingDeliverer) Deliver(_ context.Context, email, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.codes[email] = append(d.codes[email], code)
	return nil
}

func (d *recordingDeliverer) last(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	codes := d.codes[email]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

func (d *recordingDeliverer) count(email string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.codes[email])
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// testClock is a settable time source shared by the service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newSQLiteRepo returns a migrated in-memory sqlite repository manager.
func newSQLiteRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()

	db, err := auth.OpenDB(auth.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db, auth.WithMigrationLogger(nopLogger{})))

	return auth.NewRepositoryManager(db)
}

type testService struct {
	auther    *auth.Auther
	repo      auth.RepositoryManager
	deliverer *recordingDeliverer
	sink      *capturingSink
	clock     *testClock
}

func newTestService(t *testing.T, repo auth.RepositoryManager, expose bool) *testService {
	t.Helper()

	if repo == nil {
		repo = newSQLiteRepo(t)
	}

	svc := &testService{
		repo:      repo,
		deliverer: newRecordingDeliverer(),
		sink:      &capturingSink{},
		clock:     newTestClock(),
	}

	svc.auther = auth.NewAuthenticator(repo, newMockConfig(expose)).
		WithLogger(nopLogger{}).
		WithCodeDeliverer(svc.deliverer).
		WithActivitySink(svc.sink).
		WithClock(svc.clock.Now)

	return svc
}
