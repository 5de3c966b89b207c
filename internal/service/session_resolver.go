package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/events"
	"github.com/MatsTornblom/Vibzprofile/internal/metrics"
	"github.com/MatsTornblom/Vibzprofile/pkg/cookiestore"
	"github.com/MatsTornblom/Vibzprofile/pkg/validator"
)

// Credentials is the sign in and sign up form.
type Credentials struct {
	Email    string `json:"email" form:"email" validate:"required,has_at"`
	Password string `json:"password" form:"password" validate:"required"`
}

// ValidationError is returned before any remote call when input is
// rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// HostMessage is posted to the native shell embedding the pages.
type HostMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// HostShell receives messages for the embedding native app.
type HostShell interface {
	PostMessage(msg HostMessage)
}

// SessionResolver bridges the domain-wide session cookie and the auth
// backend.
type SessionResolver struct {
	backend     AuthBackend
	cookies     *cookiestore.Store
	cookieName  string
	minPassword int
	bus         *events.Bus
	validator   *validator.Validator
	logger      *zap.Logger
	now         func() time.Time
}

func NewSessionResolver(
	backend AuthBackend,
	cookies *cookiestore.Store,
	bus *events.Bus,
	v *validator.Validator,
	cfg *config.Config,
	logger *zap.Logger,
) *SessionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionResolver{
		backend:     backend,
		cookies:     cookies,
		cookieName:  cfg.Cookie.SessionName,
		minPassword: cfg.Auth.MinPasswordLength,
		bus:         bus,
		validator:   v,
		logger:      logger,
		now:         time.Now,
	}
}

// CurrentSession returns the session of the request, refreshing an expired
// access token on the way. It returns nil for anonymous requests and on any
// failure.
func (r *SessionResolver) CurrentSession(ctx context.Context, jar cookiestore.Jar) *domain.AuthSession {
	session := r.storedSession(jar)
	if session == nil {
		return nil
	}

	if session.Expired(r.now()) {
		return r.refresh(ctx, jar, session)
	}

	_, err := r.backend.Verify(ctx, session.AccessToken)
	switch {
	case err == nil:
		return session
	case errors.Is(err, ErrTokenExpired):
		return r.refresh(ctx, jar, session)
	case errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrInvalidSession):
		r.logger.Debug("discarding invalid session cookie", zap.Error(err))
		r.cookies.Remove(jar, r.cookieName)
		return nil
	default:
		r.logger.Error("failed to verify session", zap.Error(err))
		return nil
	}
}

// OnSessionChange registers fn for SIGNED_IN, TOKEN_REFRESHED and
// SIGNED_OUT. fn is never called after unsubscribe returns.
func (r *SessionResolver) OnSessionChange(fn func(ctx context.Context, event domain.SessionEvent)) (unsubscribe func()) {
	return r.bus.Subscribe(domain.TopicSessionChanged, func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(domain.SessionEvent); ok {
			fn(ctx, ev)
		}
		return nil
	})
}

// SignIn validates the form, signs in and stores the session cookie.
func (r *SessionResolver) SignIn(ctx context.Context, jar cookiestore.Jar, creds Credentials, client domain.ClientInfo) (*domain.AuthSession, error) {
	if err := r.validate(&creds); err != nil {
		return nil, err
	}

	session, err := r.backend.SignIn(ctx, creds.Email, creds.Password, client)
	if err != nil {
		return nil, err
	}

	r.establish(ctx, jar, session, domain.SessionSignedIn)
	return session, nil
}

// SignUp validates the form, creates the account and signs it in.
func (r *SessionResolver) SignUp(ctx context.Context, jar cookiestore.Jar, creds Credentials, client domain.ClientInfo) (*domain.AuthSession, error) {
	if err := r.validate(&creds); err != nil {
		return nil, err
	}

	session, err := r.backend.SignUp(ctx, creds.Email, creds.Password, client)
	if err != nil {
		return nil, err
	}

	r.establish(ctx, jar, session, domain.SessionSignedIn)
	return session, nil
}

// Refresh forces a token rotation of the stored session.
func (r *SessionResolver) Refresh(ctx context.Context, jar cookiestore.Jar) *domain.AuthSession {
	session := r.storedSession(jar)
	if session == nil {
		return nil
	}
	return r.refresh(ctx, jar, session)
}

// SignOut ends the session. Cookies are cleared even when the backend call
// fails. host is nil outside the native shell.
func (r *SessionResolver) SignOut(ctx context.Context, jar cookiestore.Jar, host HostShell) {
	session := r.storedSession(jar)

	var event domain.SessionEvent
	if session != nil {
		if err := r.backend.SignOut(ctx, session.AccessToken, session.RefreshToken); err != nil {
			r.logger.Error("backend sign out failed", zap.String("identity_id", session.User.ID.String()), zap.Error(err))
		}
		event.IdentityID = session.User.ID
	}

	r.cookies.RemoveAll(jar,
		r.cookieName,
		cookiestore.ReturnURLCookie,
		cookiestore.UsernameCookie,
		cookiestore.IDCookie,
	)

	event.Type = domain.SessionSignedOut
	r.publish(ctx, event)

	if host != nil {
		host.PostMessage(HostMessage{Type: "logout", Timestamp: r.now().UTC()})
	}
}

func (r *SessionResolver) storedSession(jar cookiestore.Jar) *domain.AuthSession {
	raw, ok := r.cookies.Get(jar, r.cookieName)
	if !ok {
		return nil
	}
	session, err := cookiestore.DecodeSession(raw)
	if err != nil {
		r.logger.Debug("ignoring malformed session cookie", zap.Error(err))
		return nil
	}
	return session
}

func (r *SessionResolver) refresh(ctx context.Context, jar cookiestore.Jar, stale *domain.AuthSession) *domain.AuthSession {
	session, err := r.backend.Refresh(ctx, stale.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrAccountLocked) {
			r.cookies.Remove(jar, r.cookieName)
			return nil
		}
		r.logger.Error("failed to refresh session", zap.String("identity_id", stale.User.ID.String()), zap.Error(err))
		return nil
	}

	r.establish(ctx, jar, session, domain.SessionTokenRefreshed)
	return session
}

func (r *SessionResolver) establish(ctx context.Context, jar cookiestore.Jar, session *domain.AuthSession, kind domain.SessionEventType) {
	value, err := cookiestore.EncodeSession(session)
	if err != nil {
		r.logger.Error("failed to encode session cookie", zap.Error(err))
	} else {
		r.cookies.Set(jar, r.cookieName, value)
	}
	r.cookies.Set(jar, cookiestore.IDCookie, session.User.ID.String())

	r.publish(ctx, domain.SessionEvent{
		Type:       kind,
		IdentityID: session.User.ID,
		Session:    session,
	})
}

func (r *SessionResolver) publish(ctx context.Context, event domain.SessionEvent) {
	event.OccurredAt = r.now()
	metrics.RecordSessionEvent(string(event.Type))
	r.bus.Publish(ctx, event)
}

func (r *SessionResolver) validate(creds *Credentials) error {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := r.validator.Validate(creds); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if len(creds.Password) < r.minPassword {
		return &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", r.minPassword)}
	}
	return nil
}
