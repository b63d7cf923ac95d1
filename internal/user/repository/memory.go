package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

// MemoryRepository keeps users in process. It enforces the same username
// and email uniqueness as the users table.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[domain.ID]domain.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[domain.ID]domain.User)}
}

func (r *MemoryRepository) Create(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return ErrUserAlreadyExists
	}
	if r.conflictsLocked(user) {
		return ErrUserAlreadyExists
	}
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	if r.conflictsLocked(user) {
		return ErrUserAlreadyExists
	}
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepository) conflictsLocked(user domain.User) bool {
	for id, existing := range r.users {
		if id == user.ID {
			continue
		}
		if existing.Username == user.Username || existing.Email == user.Email {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, ErrUserNotFound
}

func (r *MemoryRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []domain.User
	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			matches = append(matches, u)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Username < matches[j].Username })
	return matches, nil
}
