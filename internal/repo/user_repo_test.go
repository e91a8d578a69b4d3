package repo_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
	"github.com/tazhibayda/learnpath-auth/internal/domain"
	"github.com/tazhibayda/learnpath-auth/internal/repo"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

type userStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	ConfirmEmail(ctx context.Context, email, code string) (*domain.User, error)
	SetResetToken(ctx context.Context, id, token string) error
	FindUserByResetToken(ctx context.Context, id, token string) (*domain.User, error)
	ConsumeResetToken(ctx context.Context, id, token, passwordHash string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) (*domain.User, error)
	FindOrCreateGoogleUser(ctx context.Context, u *domain.User) (*domain.User, bool, error)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) userStore { return repo.NewMemoryStore() })
}

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("mongo container skipped in -short mode")
	}
	ctx := context.Background()

	mc, err := mongodb.Run(ctx, "mongo:6")
	testcontainers.CleanupContainer(t, mc)
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}

	uri, err := mc.ConnectionString(ctx)
	require.NoError(t, err)

	var n atomic.Int32
	runStoreContract(t, func(t *testing.T) userStore {
		// fresh database per subtest so emails never collide
		db := fmt.Sprintf("auth_test_%d", n.Add(1))
		s, err := repo.NewStore(ctx, uri, db)
		require.NoError(t, err)
		require.NoError(t, s.EnsureIndexes(ctx))
		t.Cleanup(func() {
			_ = s.DB.Drop(context.Background())
			_ = s.Close(context.Background())
		})
		return s
	})
}

func pendingUser(email string) *domain.User {
	return &domain.User{
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Ada",
		Status:       domain.StatusUnverified,
		Verification: &domain.Verification{Code: "123456", Token: "vt"},
	}
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) userStore) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		s := newStore(t)
		u := pendingUser("ada@example.com")
		require.NoError(t, s.CreateUser(ctx, u))
		require.False(t, u.ID.IsZero())

		byEmail, err := s.FindUserByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
		assert.Equal(t, "123456", byEmail.Verification.Code)

		byID, err := s.FindUserByID(ctx, u.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", byID.Email)
	})

	t.Run("duplicate email", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateUser(ctx, pendingUser("dup@example.com")))
		err := s.CreateUser(ctx, pendingUser("dup@example.com"))
		assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
	})

	t.Run("missing user", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = s.FindUserByID(ctx, "not-an-id")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("confirm email once", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateUser(ctx, pendingUser("c@example.com")))

		_, err := s.ConfirmEmail(ctx, "c@example.com", "000000")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		u, err := s.ConfirmEmail(ctx, "c@example.com", "123456")
		require.NoError(t, err)
		assert.True(t, u.IsVerified())
		assert.Nil(t, u.Verification)

		_, err = s.ConfirmEmail(ctx, "c@example.com", "123456")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("reset token is single use", func(t *testing.T) {
		s := newStore(t)
		u := pendingUser("r@example.com")
		require.NoError(t, s.CreateUser(ctx, u))
		id := u.ID.Hex()

		require.NoError(t, s.SetResetToken(ctx, id, "tok-1"))
		require.NoError(t, s.SetResetToken(ctx, id, "tok-2"))

		_, err := s.FindUserByResetToken(ctx, id, "tok-1")
		assert.ErrorIs(t, err, apperrors.ErrNotFound, "older token is replaced")

		got, err := s.FindUserByResetToken(ctx, id, "tok-2")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		got, err = s.ConsumeResetToken(ctx, id, "tok-2", "new-hash")
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
		assert.Empty(t, got.ResetToken)

		_, err = s.ConsumeResetToken(ctx, id, "tok-2", "other")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		s := newStore(t)
		u := pendingUser("race@example.com")
		require.NoError(t, s.CreateUser(ctx, u))
		require.NoError(t, s.SetResetToken(ctx, u.ID.Hex(), "tok"))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ConsumeResetToken(ctx, u.ID.Hex(), "tok", "h"); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
	})

	t.Run("set reset token on unknown id", func(t *testing.T) {
		s := newStore(t)
		err := s.SetResetToken(ctx, "0123456789abcdef01234567", "tok")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("update profile", func(t *testing.T) {
		s := newStore(t)
		u := pendingUser("p@example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		bio := "mentor"
		got, err := s.UpdateProfile(ctx, u.ID.Hex(), domain.ProfileUpdate{Bio: &bio})
		require.NoError(t, err)
		assert.Equal(t, "mentor", got.Bio)
		assert.Equal(t, "Ada", got.FullName)
	})

	t.Run("google find or create", func(t *testing.T) {
		s := newStore(t)
		in := &domain.User{Email: "g@example.com", FullName: "G", GoogleID: "sub-1"}

		first, created, err := s.FindOrCreateGoogleUser(ctx, in)
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, first.IsVerified())
		assert.False(t, first.HasPassword())

		second, created, err := s.FindOrCreateGoogleUser(ctx, in)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("google leaves password account untouched", func(t *testing.T) {
		s := newStore(t)
		u := pendingUser("both@example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		got, created, err := s.FindOrCreateGoogleUser(ctx, &domain.User{Email: "both@example.com", GoogleID: "sub-2"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, domain.StatusUnverified, got.Status)
		assert.Empty(t, got.GoogleID)
	})
}
