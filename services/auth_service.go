package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"storefront-service/apperrors"
	"storefront-service/logger"
	"storefront-service/models"
	awspkg "storefront-service/pkg/aws"
	"storefront-service/repository"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CredentialVerifier checks a username/password pair.
// It returns apperrors.ErrInvalidCredentials when they do not match.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (*models.UserSummary, error)
}

// StaticVerifier accepts a single configured account.
type StaticVerifier struct {
	username string
	hash     []byte
}

// NewStaticVerifier hashes password once so it is never compared in plain text.
func NewStaticVerifier(username, password string) (*StaticVerifier, error) {
	if username == "" || password == "" {
		return nil, errors.New("admin username and password must be set")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &StaticVerifier{username: username, hash: hash}, nil
}

func (v *StaticVerifier) Verify(_ context.Context, username, password string) (*models.UserSummary, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(v.hash, []byte(password))
	if !userOK || passErr != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return &models.UserSummary{ID: 1, Username: v.username}, nil
}

// UserStoreVerifier checks credentials against the users table.
type UserStoreVerifier struct {
	users repository.UserRepository
}

func NewUserStoreVerifier(users repository.UserRepository) *UserStoreVerifier {
	return &UserStoreVerifier{users: users}
}

func (v *UserStoreVerifier) Verify(ctx context.Context, username, password string) (*models.UserSummary, error) {
	user, err := v.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return &models.UserSummary{ID: user.ID, Username: user.Username}, nil
}

// AuthService authenticates admins and issues sessions.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*models.Session, error)
}

type authServiceImpl struct {
	verifier CredentialVerifier
	tokens   *TokenService
	metrics  MetricsRecorder
	logger   *zap.Logger
}

func NewAuthService(verifier CredentialVerifier, tokens *TokenService, metrics MetricsRecorder, logger *zap.Logger) AuthService {
	return &authServiceImpl{verifier: verifier, tokens: tokens, metrics: metrics, logger: logger}
}

func (s *authServiceImpl) Login(ctx context.Context, username, password string) (*models.Session, error) {
	if username == "" || password == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "username and password are required")
	}

	user, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			logger.With(ctx, s.logger).Warn("login rejected", zap.String("username", username))
			if s.metrics != nil {
				if err := s.metrics.RecordCount(ctx, awspkg.MetricLoginFailed, nil); err != nil {
					logger.With(ctx, s.logger).Warn("failed to record metric",
						zap.String("metric", awspkg.MetricLoginFailed), zap.Error(err))
				}
			}
		}
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("admin logged in", zap.String("username", user.Username))
	return &models.Session{
		Message:   "Login successful",
		User:      *user,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
	}, nil
}
