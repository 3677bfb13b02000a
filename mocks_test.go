package auth_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	auth "github.com/goliatone/go-session-auth"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockMailer implements auth.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg *auth.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// capturingMailer records every sent message.
type capturingMailer struct {
	sent []*auth.Message
}

func (m *capturingMailer) Send(_ context.Context, msg *auth.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

// testLogger swallows log output during tests.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// fakeUsers is an in-memory Users store.
type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*auth.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]*auth.User{}}
}

func (f *fakeUsers) add(user *auth.User) *auth.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == 0 {
		f.nextID++
		user.ID = f.nextID
	} else if user.ID > f.nextID {
		f.nextID = user.ID
	}
	if user.Hash == "" && user.Username != "" {
		hash, err := auth.CapabilityHash(user.Username)
		if err == nil {
			user.Hash = hash
		}
	}
	f.byID[user.ID] = user
	return user
}

func (f *fakeUsers) Find(_ context.Context, id int64) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	return f.findBy(func(u *auth.User) bool { return u.Username == username })
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	return f.findBy(func(u *auth.User) bool { return u.Email == email })
}

func (f *fakeUsers) FindByHash(_ context.Context, hash string) (*auth.User, error) {
	return f.findBy(func(u *auth.User) bool { return u.Hash == hash })
}

func (f *fakeUsers) FindByIdentity(ctx context.Context, token string) (*auth.User, error) {
	if token == "" {
		return nil, nil
	}
	if user, err := f.FindByUsername(ctx, token); err != nil || user != nil {
		return user, err
	}
	return f.FindByHash(ctx, token)
}

func (f *fakeUsers) findBy(match func(*auth.User) bool) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byID {
		if match(user) {
			return user, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Save(_ context.Context, user *auth.User) (*auth.User, error) {
	return f.add(user), nil
}

func (f *fakeUsers) TrackAttemptedLogin(_ context.Context, user *auth.User) error {
	now := time.Now()
	user.LoginAttempts++
	user.LoginAttemptAt = &now
	return nil
}

func (f *fakeUsers) ResetLoginAttempts(_ context.Context, user *auth.User) error {
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil
	return nil
}

func (f *fakeUsers) SetLastLogin(_ context.Context, user *auth.User, at time.Time) error {
	user.LastLoginAt = &at
	return nil
}

func (f *fakeUsers) ValidateUser(context.Context, *auth.User) map[string]string {
	return map[string]string{}
}

// fakeStatusEntries is an in-memory StatusEntries store with the same
// (created_at DESC, id DESC) ordering as the bun implementation.
type fakeStatusEntries struct {
	mu      sync.Mutex
	nextID  int64
	entries []*auth.StatusEntry
}

func newFakeStatusEntries() *fakeStatusEntries {
	return &fakeStatusEntries{}
}

func (f *fakeStatusEntries) Find(_ context.Context, id int64) (*auth.StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, nil
}

func (f *fakeStatusEntries) Create(_ context.Context, entry *auth.StatusEntry) (*auth.StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = f.nextID
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeStatusEntries) Update(_ context.Context, entry *auth.StatusEntry) (*auth.StatusEntry, error) {
	return entry, nil
}

func (f *fakeStatusEntries) FindByRef(_ context.Context, ref auth.ForeignRef) ([]*auth.StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.StatusEntry
	for _, entry := range f.entries {
		if entry.FKey == ref.Kind && entry.FID == ref.ID {
			out = append(out, entry)
		}
	}
	sortEntriesDesc(out)
	return out, nil
}

func (f *fakeStatusEntries) FindLatestByRef(ctx context.Context, ref auth.ForeignRef) (*auth.StatusEntry, error) {
	entries, err := f.FindByRef(ctx, ref)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

func (f *fakeStatusEntries) FindPrevious(_ context.Context, entry *auth.StatusEntry) (*auth.StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var candidates []*auth.StatusEntry
	for _, other := range f.entries {
		if other.FKey != entry.FKey || other.FID != entry.FID {
			continue
		}
		if entry.ID == 0 {
			if !other.CreatedAt.After(entry.CreatedAt) {
				candidates = append(candidates, other)
			}
			continue
		}
		if other.CreatedAt.Before(entry.CreatedAt) ||
			(other.CreatedAt.Equal(entry.CreatedAt) && other.ID < entry.ID) {
			candidates = append(candidates, other)
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sortEntriesDesc(candidates)
	return candidates[0], nil
}

func sortEntriesDesc(entries []*auth.StatusEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}

// fakeRepo bundles the fakes as a RepositoryManager.
type fakeRepo struct {
	users   *fakeUsers
	entries *fakeStatusEntries
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:   newFakeUsers(),
		entries: newFakeStatusEntries(),
	}
}

func (f *fakeRepo) Users() auth.Users                 { return f.users }
func (f *fakeRepo) StatusEntries() auth.StatusEntries { return f.entries }
func (f *fakeRepo) Validate() error                   { return nil }
func (f *fakeRepo) MustValidate()                     {}

func (f *fakeRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

// newTestScope wires a scope over fakes with a real dispatcher and session.
func newTestScope(repo auth.RepositoryManager) *auth.Scope {
	return auth.NewScope(auth.NewMemorySessionStore(), auth.NewEventBus(), repo)
}

func activeUser(id int64, username string, role auth.UserRole) *auth.User {
	hash, _ := auth.CapabilityHash(username)
	return &auth.User{
		ID:       id,
		Username: username,
		Name:     username,
		Email:    username + "@example.com",
		Role:     role,
		Active:   true,
		Hash:     hash,
	}
}
