package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
	"github.com/MatsTornblom/Vibzprofile/pkg/email"
	"github.com/MatsTornblom/Vibzprofile/pkg/hash"
)

// Custom errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidSession     = errors.New("session is invalid or expired")
	ErrTokenExpired       = errors.New("access token expired")
	ErrTokenRevoked       = errors.New("access token revoked")
	ErrSessionNotFound    = errors.New("session not found")
)

// AuthBackend is the hosted authentication contract the session resolver
// relies on.
type AuthBackend interface {
	SignUp(ctx context.Context, email, password string, client domain.ClientInfo) (*domain.AuthSession, error)
	SignIn(ctx context.Context, email, password string, client domain.ClientInfo) (*domain.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error)
	SignOut(ctx context.Context, accessToken, refreshToken string) error
	Verify(ctx context.Context, accessToken string) (*domain.Claims, error)
}

// TokenIssuer signs and checks the shared tokens.
type TokenIssuer interface {
	GenerateTokenPair(account *domain.Account, sessionID uuid.UUID) (*domain.TokenPair, error)
	ValidateTokenOfType(tokenString, tokenType string) (*domain.Claims, error)
}

// TokenRevoker remembers signed-out tokens until they expire.
type TokenRevoker interface {
	AddAccessToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
	RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// AuthService is the credential backend: accounts, server sessions and
// the tokens shared with the other vibz.world services.
type AuthService struct {
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	tokens      TokenIssuer
	revoker     TokenRevoker
	hasher      *hash.Hasher
	mailer      email.EmailService
	cfg         *config.Config
	logger      *zap.Logger
	now         func() time.Time
}

func NewAuthService(
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	tokens TokenIssuer,
	revoker TokenRevoker,
	hasher *hash.Hasher,
	mailer email.EmailService,
	cfg *config.Config,
	logger *zap.Logger,
) *AuthService {
	if mailer == nil {
		mailer = email.NoopEmailService{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		revoker:     revoker,
		hasher:      hasher,
		mailer:      mailer,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// SignUp creates an account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, emailAddr, password string, client domain.ClientInfo) (*domain.AuthSession, error) {
	emailAddr = normalizeEmail(emailAddr)

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        emailAddr,
		PasswordHash: passwordHash,
		Status:       domain.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	session, err := s.issueSession(ctx, account, client)
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendWelcomeEmail(ctx, account.Email, ""); err != nil {
		s.logger.Warn("failed to send welcome email", zap.String("account_id", account.ID.String()), zap.Error(err))
	}

	s.logger.Info("account created", zap.String("account_id", account.ID.String()))
	return session, nil
}

// SignIn checks the credentials and opens a new session.
func (s *AuthService) SignIn(ctx context.Context, emailAddr, password string, client domain.ClientInfo) (*domain.AuthSession, error) {
	account, err := s.accountRepo.GetByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if account.IsLocked(now) {
		return nil, ErrAccountLocked
	}
	// Unlock account if lock period has expired
	if account.Status == domain.AccountStatusLocked {
		account.Status = domain.AccountStatusActive
		account.FailedLogins = 0
		account.LockedUntil = nil
		account.UpdatedAt = now
		if err := s.accountRepo.Update(ctx, account); err != nil {
			return nil, err
		}
	}

	valid, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !valid {
		if err := s.handleFailedLogin(ctx, account); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if account.FailedLogins > 0 {
		if err := s.accountRepo.ResetFailedLogins(ctx, account.ID); err != nil {
			return nil, err
		}
	}

	if s.hasher.NeedsRehash(account.PasswordHash) {
		if rehashed, err := s.hasher.Hash(password); err == nil {
			account.PasswordHash = rehashed
			account.UpdatedAt = now
			if err := s.accountRepo.Update(ctx, account); err != nil {
				s.logger.Warn("failed to store rehashed password", zap.Error(err))
			}
		}
	}

	session, err := s.issueSession(ctx, account, client)
	if err != nil {
		return nil, err
	}

	if err := s.accountRepo.UpdateLastSignIn(ctx, account.ID, now); err != nil {
		s.logger.Warn("failed to update last sign in", zap.String("account_id", account.ID.String()), zap.Error(err))
	}

	return session, nil
}

// Refresh rotates the refresh token of a live session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error) {
	if _, err := s.tokens.ValidateTokenOfType(refreshToken, domain.TokenTypeRefresh); err != nil {
		return nil, ErrInvalidSession
	}

	session, err := s.sessionRepo.GetByToken(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	now := s.now()
	if now.After(session.ExpiresAt) {
		_ = s.sessionRepo.Delete(ctx, session.ID)
		return nil, ErrInvalidSession
	}

	account, err := s.accountRepo.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if account.IsLocked(now) {
		return nil, ErrAccountLocked
	}

	pair, err := s.tokens.GenerateTokenPair(account, session.ID)
	if err != nil {
		return nil, err
	}

	session.RefreshTokenHash = hashToken(pair.RefreshToken)
	session.ExpiresAt = now.Add(s.cfg.JWT.RefreshTokenExpiry)
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, err
	}

	return toAuthSession(pair, account), nil
}

// SignOut revokes the access token and deletes the server session. The
// access token may already be expired.
func (s *AuthService) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		claims, err := s.tokens.ValidateTokenOfType(accessToken, domain.TokenTypeAccess)
		if err == nil && claims.ExpiresAt != nil {
			if err := s.revoker.AddAccessToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				s.logger.Warn("failed to blacklist access token", zap.Error(err))
			}
			if err := s.revoker.RevokeSession(ctx, claims.SessionID.String(), s.cfg.JWT.AccessTokenExpiry); err != nil {
				s.logger.Warn("failed to revoke session", zap.Error(err))
			}
		}
	}

	if refreshToken == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByToken(ctx, hashToken(refreshToken)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// Verify checks an access token, including revocation.
func (s *AuthService) Verify(ctx context.Context, accessToken string) (*domain.Claims, error) {
	claims, err := s.tokens.ValidateTokenOfType(accessToken, domain.TokenTypeAccess)
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidSession
	}

	revoked, err := s.revoker.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		revoked, err = s.revoker.IsSessionRevoked(ctx, claims.SessionID.String())
		if err != nil {
			return nil, err
		}
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// ListSessions returns the signed-in browsers of an account.
func (s *AuthService) ListSessions(ctx context.Context, accountID uuid.UUID) ([]*domain.Session, error) {
	sessions, err := s.sessionRepo.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// CloseSession signs out one browser of the account. Its access token stops
// verifying immediately.
func (s *AuthService) CloseSession(ctx context.Context, accountID, sessionID uuid.UUID) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && session.AccountID != accountID) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if err := s.revoker.RevokeSession(ctx, sessionID.String(), s.cfg.JWT.AccessTokenExpiry); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// handleFailedLogin increments failed login count and locks account if threshold is reached
func (s *AuthService) handleFailedLogin(ctx context.Context, account *domain.Account) error {
	failed, err := s.accountRepo.IncrementFailedLogins(ctx, account.ID)
	if err != nil {
		return err
	}

	if failed >= s.cfg.Auth.MaxFailedLogins {
		now := s.now()
		lockUntil := now.Add(s.cfg.Auth.LockDuration)
		account.Status = domain.AccountStatusLocked
		account.FailedLogins = failed
		account.LockedUntil = &lockUntil
		account.UpdatedAt = now

		if err := s.accountRepo.Update(ctx, account); err != nil {
			return err
		}
		s.logger.Warn("account locked", zap.String("account_id", account.ID.String()), zap.Int("failed_logins", failed))
	}

	return nil
}

func (s *AuthService) issueSession(ctx context.Context, account *domain.Account, client domain.ClientInfo) (*domain.AuthSession, error) {
	sessionID := uuid.New()

	pair, err := s.tokens.GenerateTokenPair(account, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &domain.Session{
		ID:               sessionID,
		AccountID:        account.ID,
		RefreshTokenHash: hashToken(pair.RefreshToken),
		UserAgent:        client.UserAgent,
		IPAddress:        client.IPAddress,
		ExpiresAt:        now.Add(s.cfg.JWT.RefreshTokenExpiry),
		CreatedAt:        now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return toAuthSession(pair, account), nil
}

func toAuthSession(pair *domain.TokenPair, account *domain.Account) *domain.AuthSession {
	return &domain.AuthSession{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresAt:    pair.ExpiresAt,
		User: domain.SessionUser{
			ID:    account.ID,
			Email: account.Email,
		},
	}
}

func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}

// hashToken creates a SHA-256 hash of the token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

var _ AuthBackend = (*AuthService)(nil)
