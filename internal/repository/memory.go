package repository

import (
	"context"
	"sync"
	"time"

	"go-auth-service/internal/model"
)

// MemoryUserRepository is a process-local credential store with the same
// uniqueness guarantees as the Postgres one.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]model.User
	byUsername map[string]int64
	byEmail    map[string]int64
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       map[int64]model.User{},
		byUsername: map[string]int64{},
		byEmail:    map[string]int64{},
	}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id int64) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) Create(_ context.Context, username string, email string, passwordHash string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[username]; taken {
		return model.User{}, &model.DuplicateKeyError{Field: "username"}
	}
	if _, taken := r.byEmail[email]; taken {
		return model.User{}, &model.DuplicateKeyError{Field: "email"}
	}

	r.nextID++
	u := model.User{
		ID:           r.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	r.byID[u.ID] = u
	r.byUsername[username] = u.ID
	r.byEmail[email] = u.ID

	return u, nil
}

// MemoryRevocationRepository keeps revoked token ids in a map.
type MemoryRevocationRepository struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

func NewMemoryRevocationRepository() *MemoryRevocationRepository {
	return &MemoryRevocationRepository{revoked: map[string]time.Time{}}
}

func (r *MemoryRevocationRepository) Revoke(_ context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.revoked[tokenID]; exists {
		return false, nil
	}
	r.revoked[tokenID] = expiresAt.UTC()
	return true, nil
}

func (r *MemoryRevocationRepository) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.revoked[tokenID]
	return exists, nil
}

func (r *MemoryRevocationRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, expiresAt := range r.revoked {
		if !expiresAt.After(now) {
			delete(r.revoked, id)
			purged++
		}
	}
	return purged, nil
}
