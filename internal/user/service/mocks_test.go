package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AlibekovAA/user-directory/backend/internal/common/clock"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/common/tasks"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
	userrepo "github.com/AlibekovAA/user-directory/backend/internal/user/repository"
	"github.com/AlibekovAA/user-directory/backend/internal/user/service"
)

type mockCache struct {
	mu        sync.Mutex
	entries   map[string]domain.CacheEntry
	persisted []string
	removed   []string
	finds     int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]domain.CacheEntry)}
}

func (m *mockCache) Persist(ctx context.Context, entry domain.CacheEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Username] = entry
	m.persisted = append(m.persisted, entry.Username)
	return true
}

func (m *mockCache) Find(ctx context.Context, username string) (domain.CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	entry, ok := m.entries[username]
	return entry, ok
}

func (m *mockCache) Remove(ctx context.Context, username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, username)
	m.removed = append(m.removed, username)
	return true
}

type emission struct {
	correlationID string
	event         domain.ChangeEvent
}

type mockEmitter struct {
	mu     sync.Mutex
	events []emission
}

func (m *mockEmitter) Emit(ctx context.Context, correlationID string, event *domain.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, emission{correlationID: correlationID, event: *event})
	return nil
}

type mockRecorder struct {
	correlationIDs []string
	payloads       [][]byte
}

func (m *mockRecorder) Record(ctx context.Context, correlationID string, payload []byte, reason string) {
	m.correlationIDs = append(m.correlationIDs, correlationID)
	m.payloads = append(m.payloads, payload)
}

// inlineTasks runs every task on submission unless full is set.
type inlineTasks struct {
	full bool
}

func (q *inlineTasks) Submit(ctx context.Context, name string, fn tasks.Task) bool {
	if q.full {
		return false
	}
	_ = fn(ctx)
	return true
}

func (q *inlineTasks) SubmitKeyed(ctx context.Context, key, name string, fn tasks.Task) bool {
	return q.Submit(ctx, name, fn)
}

type mockIDGenerator struct {
	next int
}

func (m *mockIDGenerator) NewID() (string, error) {
	m.next++
	return fmt.Sprintf("user-%d", m.next), nil
}

type mockUserRepo struct {
	createFunc                func(ctx context.Context, user domain.User) error
	updateFunc                func(ctx context.Context, user domain.User) error
	findByUsernameFunc        func(ctx context.Context, username string) (domain.User, error)
	findByUsernameOrEmailFunc func(ctx context.Context, username, email string) ([]domain.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user domain.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user domain.User) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	if m.findByUsernameFunc != nil {
		return m.findByUsernameFunc(ctx, username)
	}
	return domain.User{}, userrepo.ErrUserNotFound
}

func (m *mockUserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) ([]domain.User, error) {
	if m.findByUsernameOrEmailFunc != nil {
		return m.findByUsernameOrEmailFunc(ctx, username, email)
	}
	return nil, nil
}

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *service.UserService
	repo     userrepo.Repository
	cache    *mockCache
	emitter  *mockEmitter
	recorder *mockRecorder
	tasks    *inlineTasks
	clock    *clock.MockClock
}

func setupUserService(t *testing.T, repo userrepo.Repository) *fixture {
	t.Helper()
	if repo == nil {
		repo = userrepo.NewMemoryRepository()
	}
	log, _ := logger.New("", "test", "error")

	f := &fixture{
		repo:     repo,
		cache:    newMockCache(),
		emitter:  &mockEmitter{},
		recorder: &mockRecorder{},
		tasks:    &inlineTasks{},
		clock:    clock.NewMockClock(testNow),
	}
	f.svc = service.NewUserService(
		service.UserServiceDeps{
			Repo:        repo,
			Cache:       f.cache,
			Emitter:     f.emitter,
			Recorder:    f.recorder,
			Tasks:       f.tasks,
			IDGenerator: &mockIDGenerator{},
			Clock:       f.clock,
			Log:         log,
		},
		service.UserServiceConfig{
			StorageTimeout:          time.Second,
			CircuitBreakerThreshold: 3,
			CircuitBreakerReset:     time.Minute,
		},
	)
	return f
}

func newUser(username, email, firstName string, lastName *string) domain.User {
	return domain.User{
		UserIdentity: domain.UserIdentity{Username: username},
		UserProfile: domain.UserProfile{
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		},
	}
}
