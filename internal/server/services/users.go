// Package services implements the application logic: account lifecycle and
// the upload/download/list operations tying records to blobs.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avezhov/filestorage/internal/common"
	"github.com/avezhov/filestorage/internal/logging"
	"github.com/avezhov/filestorage/internal/server/auth"
	"github.com/avezhov/filestorage/internal/server/models"
	"github.com/avezhov/filestorage/internal/server/repositories/repomanager"
)

// UserService handles registration, credential checks and token issuance.
type UserService struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	secretKey     []byte
	tokenValidity time.Duration
	logger        logging.Logger
}

func NewUserService(db *sql.DB, repos repomanager.RepositoryManager, secretKey string,
	tokenValidity time.Duration, logger logging.Logger) *UserService {
	return &UserService{
		db:            db,
		repos:         repos,
		secretKey:     []byte(secretKey),
		tokenValidity: tokenValidity,
		logger:        logger.With("module", "user_service"),
	}
}

// Register creates a new account with a bcrypt-hashed password and a fresh
// public uuid. A taken username surfaces as ErrUserAlreadyExists.
func (s *UserService) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password", common.ErrFieldRequired)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("can't hash password: %w", err)
	}

	_, err = s.repos.Users(s.db).Create(ctx, &models.User{
		Username:       username,
		HashedPassword: hash,
		UUID:           uuid.NewString(),
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "user registered", "username", username)
	return nil
}

// Login verifies the credentials and returns a signed access token. Both an
// unknown username and a wrong password map to ErrInvalidCredentials so the
// response does not reveal which part failed.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repos.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrInvalidCredentials
		}
		return "", err
	}

	if !auth.VerifyPassword(password, user.HashedPassword) {
		return "", common.ErrInvalidCredentials
	}

	return auth.GenerateToken(username, s.secretKey, s.tokenValidity)
}

// Authenticate resolves a bearer token into the principal it was issued to.
// Expired or tampered tokens, and tokens for users that no longer exist,
// all map to ErrInvalidToken.
func (s *UserService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	username, err := auth.GetUsernameFromToken(token, s.secretKey)
	if err != nil {
		return nil, err
	}

	user, err := s.repos.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}

	return &Principal{ID: user.ID, Username: user.Username, UUID: user.UUID}, nil
}
