package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mosegray/recordvault/internal/domain/user"
	"github.com/mosegray/recordvault/internal/repo/postgres"
)

// UsersRepo is an in-memory credential store with the same surface as the
// postgres repo. Used by handler tests and DB-less local runs.
type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User // keyed by ID
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if u.Email == email {
			return u, nil
		}
	}

	return user.User{}, postgres.ErrUserNotFound
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]

	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}

	return u, nil
}

func (r *UsersRepo) Create(_ context.Context, username, email, passwordHash, role string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.Email == email {
			return user.User{}, postgres.ErrEmailTaken
		}
		if existing.Username == username {
			return user.User{}, postgres.ErrUsernameTaken
		}
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.items[u.ID] = u

	return u, nil
}

func (r *UsersRepo) UpdateUsername(_ context.Context, id, username string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]

	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}

	for otherID, other := range r.items {
		if otherID != id && other.Username == username {
			return user.User{}, postgres.ErrUsernameTaken
		}
	}

	u.Username = username
	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return u, nil
}

func (r *UsersRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]

	if !ok {
		return postgres.ErrUserNotFound
	}

	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return nil
}

func (r *UsersRepo) List(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.User, 0, len(r.items))

	for _, u := range r.items {
		out = append(out, u)
	}

	return out, nil
}

func (r *UsersRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items), nil
}
