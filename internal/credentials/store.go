package credentials

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/npezzotti/rtc-broker/internal/brokererr"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Store is the Credential Store: register, login, and lookup, backed
// by a Repository and a TokenService for minting/verifying bearer
// tokens.
type Store struct {
	repo   Repository
	tokens *TokenService
}

func NewStore(repo Repository, tokens *TokenService) *Store {
	return &Store{repo: repo, tokens: tokens}
}

// Register validates the request, hashes the password, persists the
// user, and returns a freshly minted bearer token alongside the
// wire-safe user projection.
func (s *Store) Register(email, username, password string) (PublicUser, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if !emailRe.MatchString(email) {
		return PublicUser{}, "", brokererr.NewValidationError("malformed email address")
	}
	if l := len(username); l < 3 || l > 20 {
		return PublicUser{}, "", brokererr.NewValidationError("username must be 3-20 characters")
	}
	if len(password) < 6 {
		return PublicUser{}, "", brokererr.NewValidationError("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return PublicUser{}, "", err
	}

	user, err := s.repo.CreateUser(email, username, string(hash))
	if err != nil {
		if isDuplicateKey(err) {
			return PublicUser{}, "", brokererr.NewConflict("email or username already registered")
		}
		return PublicUser{}, "", err
	}

	token, err := s.tokens.Mint(user.Id)
	if err != nil {
		return PublicUser{}, "", err
	}

	return user.Public(), token, nil
}

// Login verifies the password and mints a fresh token on success.
func (s *Store) Login(email, password string) (PublicUser, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PublicUser{}, "", brokererr.NewUnauthorized("invalid email or password")
		}
		return PublicUser{}, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return PublicUser{}, "", brokererr.NewUnauthorized("invalid email or password")
	}

	token, err := s.tokens.Mint(user.Id)
	if err != nil {
		return PublicUser{}, "", err
	}

	return user.Public(), token, nil
}

// GetUser resolves a userId to its public projection. Used by the
// Auth Gate to resolve an authenticated socket's username at
// handshake; that username is what the chat relay later attaches to
// messages.
func (s *Store) GetUser(userId int) (PublicUser, error) {
	user, err := s.repo.GetUserById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PublicUser{}, brokererr.NewNotFound("user not found")
		}
		return PublicUser{}, err
	}

	return user.Public(), nil
}

// VerifyToken delegates to the TokenService; exposed here so the Auth
// Gate only needs to hold a *Store.
func (s *Store) VerifyToken(tokenString string) (int, error) {
	return s.tokens.Verify(tokenString)
}
