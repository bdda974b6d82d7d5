package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nexosql-backend/internal/auth"
	"nexosql-backend/internal/config"
	"nexosql-backend/internal/logging"
	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
	"nexosql-backend/pkg/apitypes"
)

type UserService struct {
	store store.Store
	cfg   *config.Config
	log   *logrus.Entry
}

func NewUserService(s store.Store, cfg *config.Config) *UserService {
	return &UserService{store: s, cfg: cfg, log: logging.Component("UserService")}
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", validationErr("email cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", validationErr("invalid email address")
	}
	return email, nil
}

func (s *UserService) roleFor(email string) string {
	if slices.Contains(s.cfg.AdminEmails, email) {
		return auth.RoleAdmin
	}
	return auth.RoleUser
}

// Register creates an account and signs the caller in.
func (s *UserService) Register(ctx context.Context, req apitypes.RegisterRequest) (*apitypes.AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < auth.MinPasswordLength {
		return nil, validationErr("password must be at least %d characters", auth.MinPasswordLength)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         s.roleFor(email),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		s.log.WithError(err).Errorf("creating user %s", email)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.WithField("user_id", user.ID).Infof("registered %s (role %s)", email, user.Role)
	return s.issue(user)
}

// Login verifies credentials. Unknown email and wrong password look the same.
func (s *UserService) Login(ctx context.Context, req apitypes.LoginRequest) (*apitypes.AuthResponse, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	// ADMIN_EMAILS may have changed since the account was created.
	if role := s.roleFor(email); role == auth.RoleAdmin && user.Role != role {
		user.Role = role
		if err := s.store.UpdateUser(ctx, user); err != nil {
			s.log.WithError(err).Warn("promoting user to admin")
		}
	}
	return s.issue(user)
}

// Refresh trades a refresh token for a new pair.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*apitypes.AuthResponse, error) {
	claims, err := auth.ParseToken(refreshToken, s.cfg.JWTSecret, auth.TokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return s.issue(user)
}

func (s *UserService) issue(user *models.User) (*apitypes.AuthResponse, error) {
	pair, err := auth.NewTokenPair(user.ID, user.Role, s.cfg.JWTSecret, s.cfg.TokenExpiration, s.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens: %w", err)
	}
	return &apitypes.AuthResponse{
		User:         toAPIUser(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*apitypes.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := toAPIUser(user)
	return &out, nil
}

// UpdateProfile applies whichever fields are present.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req apitypes.UpdateProfileRequest) (*apitypes.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	if req.Password != nil {
		if len(*req.Password) < auth.MinPasswordLength {
			return nil, validationErr("password must be at least %d characters", auth.MinPasswordLength)
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		user.PasswordHash = hash
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	out := toAPIUser(user)
	return &out, nil
}

// Delete removes the account and everything it owns.
func (s *UserService) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.log.WithField("user_id", userID).Info("deleted account")
	return nil
}

func (s *UserService) getUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return user, nil
}
