// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"turnhub/api/internal/store"
	"turnhub/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a bad email/password pair. The
// same error covers both cases so responses do not leak which one it was.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
}

// Service provides email/password authentication
type Service struct {
	store UserStore
}

// NewService creates a new auth service
func NewService(userStore UserStore) *Service {
	return &Service{store: userStore}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	OrgID       string
}

// SignUp creates a new user account bound to an organization.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return store.User{}, errors.New("email, password, and display name are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}
	if req.OrgID == "" {
		return store.User{}, errors.New("organization id is required")
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, store.User{
		ID:           util.NewID("usr"),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		OrgID:        req.OrgID,
	})
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn verifies credentials and returns the account.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}
