package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/events"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
	"github.com/MatsTornblom/Vibzprofile/pkg/validator"
)

var (
	ErrNotAuthenticated = errors.New("not signed in")
	ErrAvatarNotImage   = errors.New("please select an image file")
	ErrAvatarTooLarge   = errors.New("image must be 5MB or smaller")
	ErrStorageDisabled  = errors.New("image uploads are not configured")
)

// SaveErrorKind classifies a failed profile save.
type SaveErrorKind string

const (
	SaveUnauthenticated SaveErrorKind = "unauthenticated"
	SaveInvalid         SaveErrorKind = "invalid"
	SaveFailed          SaveErrorKind = "failed"
)

// SaveError is shown inline next to the profile form.
type SaveError struct {
	Kind    SaveErrorKind
	Message string
	Err     error
}

func (e *SaveError) Error() string {
	return e.Message
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// ProfileCache is the optional cache-aside layer. Set must refuse to write
// when the profile was evicted after generation was read.
type ProfileCache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error)
	Generation(ctx context.Context, id uuid.UUID) (int64, error)
	Set(ctx context.Context, profile *domain.UserProfile, generation int64) (bool, error)
}

// AvatarStorage stores uploaded images and returns their public URL.
type AvatarStorage interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ProfileService reads and writes the profile row of the current identity.
type ProfileService struct {
	repo           repository.ProfileRepository
	cache          ProfileCache
	storage        AvatarStorage
	bus            events.Publisher
	validator      *validator.Validator
	devUserID      uuid.UUID
	devMode        bool
	maxAvatarBytes int64
	logger         *zap.Logger
	now            func() time.Time
}

// NewProfileService wires the service. cache and storage may be nil.
func NewProfileService(
	repo repository.ProfileRepository,
	cache ProfileCache,
	storage AvatarStorage,
	bus events.Publisher,
	v *validator.Validator,
	cfg *config.Config,
	logger *zap.Logger,
) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ProfileService{
		repo:           repo,
		cache:          cache,
		storage:        storage,
		bus:            bus,
		validator:      v,
		maxAvatarBytes: cfg.Storage.MaxAvatarBytes,
		logger:         logger,
		now:            time.Now,
	}
	// The development identity is only read when the bypass is on
	s.devUserID, s.devMode = cfg.DevUserID()
	if s.maxAvatarBytes <= 0 {
		s.maxAvatarBytes = 5 * 1024 * 1024
	}
	return s
}

// GetCurrentUser returns the profile of the session's identity, creating
// the row on first sight. It returns nil when there is no identity, on
// any failure, and when ctx was done before the result arrived.
func (s *ProfileService) GetCurrentUser(ctx context.Context, session *domain.AuthSession) *domain.UserProfile {
	id, emailAddr, ok := s.identity(session)
	if !ok {
		return nil
	}

	if cached := s.cachedProfile(ctx, id); cached != nil {
		return cached
	}

	var generation int64
	cacheable := s.cache != nil
	if cacheable {
		gen, err := s.cache.Generation(ctx, id)
		if err != nil {
			s.logger.Warn("profile cache read failed", zap.String("id", id.String()), zap.Error(err))
			cacheable = false
		}
		generation = gen
	}

	profile, err := s.fetchOrCreate(ctx, id, emailAddr)
	if err != nil {
		s.logger.Error("failed to load profile", zap.String("id", id.String()), zap.Error(err))
		return nil
	}

	// The request deadline passed while the query ran
	if ctx.Err() != nil {
		return nil
	}

	if cacheable {
		if _, err := s.cache.Set(ctx, profile, generation); err != nil {
			s.logger.Warn("profile cache write failed", zap.String("id", id.String()), zap.Error(err))
		}
	}
	return profile
}

// cachedProfile returns the cached row with the balance read fresh from
// the database, or nil when the cache cannot answer.
func (s *ProfileService) cachedProfile(ctx context.Context, id uuid.UUID) *domain.UserProfile {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("profile cache read failed", zap.String("id", id.String()), zap.Error(err))
		return nil
	}
	if cached == nil {
		return nil
	}

	balance, err := s.repo.GetBalance(ctx, id)
	if err != nil {
		s.logger.Warn("failed to refresh cached balance", zap.String("id", id.String()), zap.Error(err))
		return nil
	}
	cached.VibzBalance = balance
	return cached
}

// SaveUser writes the editable fields of update. Nil fields keep their
// stored value; the identity id comes from the session.
func (s *ProfileService) SaveUser(ctx context.Context, session *domain.AuthSession, update domain.ProfileUpdate) (*domain.UserProfile, error) {
	id, emailAddr, ok := s.identity(session)
	if !ok {
		return nil, &SaveError{Kind: SaveUnauthenticated, Message: "You must be signed in to save your profile", Err: ErrNotAuthenticated}
	}

	if err := s.ValidateUpdate(&update); err != nil {
		return nil, err
	}

	profile, err := s.fetchOrCreate(ctx, id, emailAddr)
	if err != nil {
		s.logger.Error("failed to load profile for save", zap.String("id", id.String()), zap.Error(err))
		return nil, &SaveError{Kind: SaveFailed, Message: "Failed to save profile", Err: err}
	}

	usernameChanged := update.Apply(profile)
	profile.UpdatedAt = s.now()

	if err := s.repo.UpsertEditable(ctx, profile); err != nil {
		s.logger.Error("failed to save profile", zap.String("id", id.String()), zap.Error(err))
		return nil, &SaveError{Kind: SaveFailed, Message: "Failed to save profile", Err: err}
	}

	s.bus.Publish(ctx, domain.ProfileUpdated{
		Profile:         profile,
		UsernameChanged: usernameChanged,
		OccurredAt:      profile.UpdatedAt,
	})

	return profile, nil
}

// ValidateUpdate trims update in place and checks it. Callers that upload
// an image for the same form run it first so an invalid form stores
// nothing. Failures are *SaveError with Kind SaveInvalid.
func (s *ProfileService) ValidateUpdate(update *domain.ProfileUpdate) error {
	trim(update.Username)
	trim(update.WalletAddress)
	trim(update.Email)
	// An empty string clears the field and has nothing to validate.
	check := *update
	check.Username = blankToNil(check.Username)
	check.WalletAddress = blankToNil(check.WalletAddress)
	check.Email = blankToNil(check.Email)
	check.ProfileImageURL = blankToNil(check.ProfileImageURL)
	if err := s.validator.Validate(&check); err != nil {
		return &SaveError{Kind: SaveInvalid, Message: err.Error(), Err: err}
	}
	return nil
}

// UploadAvatar checks and stores an image and returns its public URL.
// Non-images and oversized files are rejected before any remote call.
func (s *ProfileService) UploadAvatar(ctx context.Context, session *domain.AuthSession, filename, contentType string, data []byte) (string, error) {
	id, _, ok := s.identity(session)
	if !ok {
		return "", ErrNotAuthenticated
	}
	if int64(len(data)) > s.maxAvatarBytes {
		return "", ErrAvatarTooLarge
	}
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return "", ErrAvatarNotImage
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", ErrAvatarNotImage
	}
	if s.storage == nil {
		return "", ErrStorageDisabled
	}

	ext := detected.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	key := fmt.Sprintf("avatars/%s/%s%s", id, uuid.New(), ext)

	url, err := s.storage.Put(ctx, key, detected.String(), data)
	if err != nil {
		s.logger.Error("avatar upload failed", zap.String("id", id.String()), zap.Error(err))
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return url, nil
}

// Authenticated reports whether a profile can be resolved for session,
// which is always the case in development bypass mode.
func (s *ProfileService) Authenticated(session *domain.AuthSession) bool {
	_, _, ok := s.identity(session)
	return ok
}

// WarmOnSessionChange loads, and lazily creates, the profile whenever a
// session starts or is refreshed.
func (s *ProfileService) WarmOnSessionChange(resolver *SessionResolver) (unsubscribe func()) {
	return resolver.OnSessionChange(func(ctx context.Context, ev domain.SessionEvent) {
		if ev.Type == domain.SessionSignedOut || ev.Session == nil {
			return
		}
		s.GetCurrentUser(ctx, ev.Session)
	})
}

func (s *ProfileService) fetchOrCreate(ctx context.Context, id uuid.UUID, emailAddr string) (*domain.UserProfile, error) {
	profile, err := s.repo.GetByID(ctx, id)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	created, err := s.repo.CreateIfAbsent(ctx, domain.NewUserProfile(id, emailAddr, s.now()))
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("profile created", zap.String("id", id.String()))
	}

	return s.repo.GetByID(ctx, id)
}

// identity resolves whose profile the request is about. The development
// identity replaces the session subject when the bypass is on.
func (s *ProfileService) identity(session *domain.AuthSession) (uuid.UUID, string, bool) {
	var emailAddr string
	if session != nil {
		emailAddr = session.User.Email
	}
	if s.devMode {
		return s.devUserID, emailAddr, true
	}
	if session == nil || session.User.ID == uuid.Nil {
		return uuid.Nil, "", false
	}
	return session.User.ID, emailAddr, true
}

func trim(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
