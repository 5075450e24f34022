package credentials

import (
	"database/sql"
	"testing"
	"time"

	"github.com/npezzotti/rtc-broker/internal/brokererr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore() (*Store, *MockRepository) {
	repo := &MockRepository{}
	tokens := NewTokenService([]byte("test-signing-key"))
	return NewStore(repo, tokens), repo
}

func TestStore_Register(t *testing.T) {
	t.Run("rejects malformed email", func(t *testing.T) {
		store, _ := newTestStore()
		_, _, err := store.Register("not-an-email", "validuser", "password123")
		assert.Error(t, err)
		assert.IsType(t, &brokererr.ValidationError{}, err)
	})

	t.Run("rejects short username", func(t *testing.T) {
		store, _ := newTestStore()
		_, _, err := store.Register("a@b.com", "ab", "password123")
		assert.IsType(t, &brokererr.ValidationError{}, err)
	})

	t.Run("rejects short password", func(t *testing.T) {
		store, _ := newTestStore()
		_, _, err := store.Register("a@b.com", "validuser", "short")
		assert.IsType(t, &brokererr.ValidationError{}, err)
	})

	t.Run("returns conflict on duplicate", func(t *testing.T) {
		store, repo := newTestStore()
		repo.On("CreateUser", "a@b.com", "validuser", mock.Anything).
			Return(User{}, &duplicateKeyError{constraint: "accounts_email_key"})

		_, _, err := store.Register("a@b.com", "validuser", "password123")
		assert.IsType(t, &brokererr.Conflict{}, err)
	})

	t.Run("persists hashed password and mints token", func(t *testing.T) {
		store, repo := newTestStore()
		repo.On("CreateUser", "a@b.com", "validuser", mock.Anything).
			Return(User{Id: 1, Email: "a@b.com", Username: "validuser", CreatedAt: time.Now()}, nil)

		user, token, err := store.Register("a@b.com", "validuser", "password123")
		assert.NoError(t, err)
		assert.Equal(t, "validuser", user.Username)
		assert.NotEmpty(t, token)

		var captured string
		for _, call := range repo.Calls {
			if call.Method == "CreateUser" {
				captured = call.Arguments.String(2)
			}
		}
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(captured), []byte("password123")))
	})
}

func TestStore_Login(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcryptCost)

	t.Run("returns unauthorized for unknown email", func(t *testing.T) {
		store, repo := newTestStore()
		repo.On("GetUserByEmail", "missing@b.com").Return(User{}, sql.ErrNoRows)

		_, _, err := store.Login("missing@b.com", "password123")
		assert.IsType(t, &brokererr.Unauthorized{}, err)
	})

	t.Run("returns unauthorized for wrong password", func(t *testing.T) {
		store, repo := newTestStore()
		repo.On("GetUserByEmail", "a@b.com").Return(User{Id: 1, Email: "a@b.com", PasswordHash: string(hash)}, nil)

		_, _, err := store.Login("a@b.com", "wrongpassword")
		assert.IsType(t, &brokererr.Unauthorized{}, err)
	})

	t.Run("mints token on success", func(t *testing.T) {
		store, repo := newTestStore()
		repo.On("GetUserByEmail", "a@b.com").Return(User{Id: 1, Email: "a@b.com", PasswordHash: string(hash)}, nil)

		user, token, err := store.Login("a@b.com", "password123")
		assert.NoError(t, err)
		assert.Equal(t, 1, user.Id)
		assert.NotEmpty(t, token)
	})
}

func TestStore_VerifyToken_roundTrip(t *testing.T) {
	store, _ := newTestStore()
	tokens := NewTokenService([]byte("test-signing-key"))
	store.tokens = tokens

	token, err := tokens.Mint(42)
	assert.NoError(t, err)

	userId, err := store.VerifyToken(token)
	assert.NoError(t, err)
	assert.Equal(t, 42, userId)
}
