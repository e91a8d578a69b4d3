package repo

import (
	"context"
	"sync"
	"time"

	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
	"github.com/tazhibayda/learnpath-auth/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps users in process memory with the same conditional-update
// semantics as Store. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[primitive.ObjectID]*domain.User
	byEmail map[string]primitive.ObjectID
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[primitive.ObjectID]*domain.User),
		byEmail: make(map[string]primitive.ObjectID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[u.Email]; ok {
		return apperrors.ErrDuplicateEmail
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	now := m.now()
	u.CreatedAt, u.UpdatedAt = now, now
	m.put(u)
	return nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(m.byID[id]), nil
}

func (m *MemoryStore) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.lookup(id)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(u), nil
}

func (m *MemoryStore) ConfirmEmail(_ context.Context, email, code string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok || code == "" {
		return nil, apperrors.ErrNotFound
	}
	u := m.byID[id]
	if u.Status != domain.StatusUnverified || u.Verification == nil || u.Verification.Code != code {
		return nil, apperrors.ErrNotFound
	}
	u.Status = domain.StatusVerified
	u.Verification = nil
	u.UpdatedAt = m.now()
	return clone(u), nil
}

func (m *MemoryStore) SetResetToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.lookup(id)
	if !ok {
		return apperrors.ErrNotFound
	}
	u.ResetToken = token
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) FindUserByResetToken(_ context.Context, id, token string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.lookup(id)
	if !ok || token == "" || u.ResetToken != token {
		return nil, apperrors.ErrNotFound
	}
	return clone(u), nil
}

func (m *MemoryStore) ConsumeResetToken(_ context.Context, id, token, passwordHash string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.lookup(id)
	if !ok || token == "" || u.ResetToken != token {
		return nil, apperrors.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.UpdatedAt = m.now()
	return clone(u), nil
}

func (m *MemoryStore) UpdateProfile(_ context.Context, id string, p domain.ProfileUpdate) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.lookup(id)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.ProfileImageURL != nil {
		u.ProfileImageURL = *p.ProfileImageURL
	}
	u.UpdatedAt = m.now()
	return clone(u), nil
}

func (m *MemoryStore) FindOrCreateGoogleUser(_ context.Context, u *domain.User) (*domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byEmail[u.Email]; ok {
		return clone(m.byID[id]), false, nil
	}
	nu := &domain.User{
		ID:              primitive.NewObjectID(),
		Email:           u.Email,
		FullName:        u.FullName,
		ProfileImageURL: u.ProfileImageURL,
		GoogleID:        u.GoogleID,
		Status:          domain.StatusVerified,
	}
	now := m.now()
	nu.CreatedAt, nu.UpdatedAt = now, now
	m.put(nu)
	return clone(nu), true, nil
}

func (m *MemoryStore) put(u *domain.User) {
	c := clone(u)
	m.byID[c.ID] = c
	m.byEmail[c.Email] = c.ID
}

func (m *MemoryStore) lookup(id string) (*domain.User, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	u, ok := m.byID[oid]
	return u, ok
}

func clone(u *domain.User) *domain.User {
	c := *u
	if u.Verification != nil {
		v := *u.Verification
		c.Verification = &v
	}
	return &c
}
