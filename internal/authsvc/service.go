// Package authsvc registers administrators and issues their access tokens.
package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bus-fleet/pkg/auth"
	"bus-fleet/pkg/logger"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrAdminNotFound      = errors.New("admin not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWrongPassword      = errors.New("old password is incorrect")
)

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *Admin    `json:"user"`
}

type Service struct {
	store AdminStore
	jwt   *auth.JWTManager
	log   logger.Logger
	cost  int
}

func NewService(store AdminStore, jwt *auth.JWTManager, log logger.Logger) *Service {
	return &Service{store: store, jwt: jwt, log: log, cost: bcrypt.DefaultCost}
}

func (s *Service) Register(ctx context.Context, username, password string) (*Admin, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	admin, err := s.store.CreateAdmin(ctx, username, string(hash))
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logger.LogFields{"admin_id": admin.ID}).Info("admin_registered", "Admin registered")
	return admin, nil
}

// Login checks the password and returns a signed admin token. Unknown users
// and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	admin, err := s.store.GetAdminByUsername(ctx, username)
	if errors.Is(err, ErrAdminNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.jwt.GenerateToken(strconv.FormatInt(admin.ID, 10), admin.Username, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expires, User: admin}, nil
}

func (s *Service) ChangePassword(ctx context.Context, adminID int64, oldPassword, newPassword string) error {
	admin, err := s.store.GetAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, adminID, string(hash)); err != nil {
		return err
	}
	s.log.WithFields(logger.LogFields{"admin_id": adminID}).Info("admin_password_changed", "Password changed")
	return nil
}
