package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MatsTornblom/Vibzprofile/internal/cache"
	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/events"
	"github.com/MatsTornblom/Vibzprofile/internal/handler/middleware"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
	"github.com/MatsTornblom/Vibzprofile/pkg/checkout"
	"github.com/MatsTornblom/Vibzprofile/pkg/cookiestore"
	"github.com/MatsTornblom/Vibzprofile/pkg/jwt"
	"github.com/MatsTornblom/Vibzprofile/pkg/validator"
)

const sessionCookie = "vibz-auth-token"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			AuthPortalURL: "https://enter.vibz.world",
		},
		JWT: config.JWTConfig{
			AccessTokenExpiry: time.Hour,
		},
		Auth: config.AuthConfig{
			MinPasswordLength: 6,
		},
		Cookie: config.CookieConfig{
			RootDomain:  ".vibz.world",
			SessionName: sessionCookie,
		},
		Checkout: config.CheckoutConfig{
			PriceID:         "price_vibz_pack",
			Mode:            "payment",
			PackAmount:      1000,
			FreeGrantAmount: 100,
		},
		Storage: config.StorageConfig{
			MaxAvatarBytes: 5 * 1024 * 1024,
		},
	}
}

// fakeBackend signs everyone in as the same identity.
type fakeBackend struct {
	mu        sync.Mutex
	user      domain.SessionUser
	signOuts  int
	verifyErr error
}

func (b *fakeBackend) session() *domain.AuthSession {
	return &domain.AuthSession{
		AccessToken:  "access-" + uuid.NewString(),
		RefreshToken: "refresh-" + uuid.NewString(),
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         b.user,
	}
}

func (b *fakeBackend) SignUp(context.Context, string, string, domain.ClientInfo) (*domain.AuthSession, error) {
	return b.session(), nil
}

func (b *fakeBackend) SignIn(_ context.Context, emailAddr, password string, _ domain.ClientInfo) (*domain.AuthSession, error) {
	if password != "secret1" {
		return nil, service.ErrInvalidCredentials
	}
	return b.session(), nil
}

func (b *fakeBackend) Refresh(context.Context, string) (*domain.AuthSession, error) {
	return b.session(), nil
}

func (b *fakeBackend) SignOut(context.Context, string, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signOuts++
	return nil
}

func (b *fakeBackend) Verify(context.Context, string) (*domain.Claims, error) {
	if b.verifyErr != nil {
		return nil, b.verifyErr
	}
	return &domain.Claims{UserID: b.user.ID, Email: b.user.Email, TokenType: domain.TokenTypeAccess}, nil
}

// memProfileRepo is an in-memory users table.
type memProfileRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.UserProfile
}

func (r *memProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
	}
	return &p, nil
}

func (r *memProfileRepo) CreateIfAbsent(_ context.Context, profile *domain.UserProfile) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[profile.ID]; ok {
		return false, nil
	}
	r.rows[profile.ID] = *profile
	return true, nil
}

func (r *memProfileRepo) UpsertEditable(_ context.Context, profile *domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[profile.ID]
	row.ID = profile.ID
	row.Username = profile.Username
	row.WalletAddress = profile.WalletAddress
	row.Email = profile.Email
	row.ProfileImageURL = profile.ProfileImageURL
	row.UpdatedAt = profile.UpdatedAt
	r.rows[profile.ID] = row
	return nil
}

func (r *memProfileRepo) IncrementBalance(_ context.Context, id uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.VibzBalance += amount
	r.rows[id] = row
	return nil
}

func (r *memProfileRepo) GetBalance(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].VibzBalance, nil
}

type fakeCreator struct {
	params checkout.Params
	err    error
}

func (c *fakeCreator) CreateSession(_ context.Context, _ string, params checkout.Params) (*checkout.Session, error) {
	c.params = params
	if c.err != nil {
		return nil, c.err
	}
	return &checkout.Session{URL: "https://checkout.stripe.com/c/pay/cs_test"}, nil
}

type fakeStorage struct {
	mu   sync.Mutex
	puts []string
}

func (s *fakeStorage) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, key)
	return "https://cdn.vibz.world/" + key, nil
}

type staticKeys []jwt.PublicKey

func (k staticKeys) PublishedKeys() []jwt.PublicKey { return k }

type testApp struct {
	app     *fiber.App
	backend *fakeBackend
	repo    *memProfileRepo
	creator *fakeCreator
	storage *fakeStorage
	redis   *miniredis.Miniredis
	db      sqlmock.Sqlmock
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := testConfig()
	logger := zaptest.NewLogger(t)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ta := &testApp{
		backend: &fakeBackend{user: domain.SessionUser{ID: uuid.New(), Email: "vibe@vibz.world"}},
		repo:    &memProfileRepo{rows: make(map[uuid.UUID]domain.UserProfile)},
		creator: &fakeCreator{},
		storage: &fakeStorage{},
		redis:   mr,
		db:      mock,
	}

	bus := events.NewBus(logger)
	validate := validator.NewValidator()
	cookies := cookiestore.New(cfg.Cookie.RootDomain)
	resolver := service.NewSessionResolver(ta.backend, cookies, bus, validate, cfg, logger)
	profiles := service.NewProfileService(ta.repo, nil, ta.storage, bus, validate, cfg, logger)
	balances := service.NewBalanceService(ta.repo, cache.NewInFlightGuard(redisClient, "grant:", time.Minute), bus, cfg, logger)
	checkoutService := service.NewCheckoutService(service.CheckoutServiceConfig{
		Client:   ta.creator,
		Balances: balances,
		Profiles: ta.repo,
		Config:   cfg.Checkout,
		Logger:   logger,
	})

	ta.app = fiber.New(fiber.Config{Views: NewViewEngine()})
	ta.app.Use(middleware.RecoveryMiddleware(logger))
	ta.app.Use(middleware.RequestContext(5 * time.Second))
	SetupRoutes(ta.app, Handlers{
		Auth:     NewAuthHandler(resolver, logger),
		User:     NewUserHandler(profiles, balances, cookies, logger),
		Checkout: NewCheckoutHandler(checkoutService, logger),
		Sessions: NewSessionHandler(service.NewAuthService(nil, nil, nil, nil, nil, nil, cfg, logger), logger),
		Pages:    NewPageHandler(resolver, profiles, balances, checkoutService, cookies, cfg, logger),
		Health:   NewHealthHandler(db, redisClient, "1.2.3", "42", logger),
		JWKS:     NewJWKSHandler(staticKeys{{ID: "vibz-test", Key: &key.PublicKey}}),
	},
		middleware.SessionMiddleware(resolver),
		middleware.BearerAuth(ta.backend),
	)
	return ta
}

func (ta *testApp) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// signIn returns the cookies a browser would keep after signing in.
func (ta *testApp) signIn(t *testing.T) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", strings.NewReader(`{"email":"vibe@vibz.world","password":"secret1"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp := ta.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return liveCookies(resp)
}

// liveCookies keeps the last non-expired Set-Cookie per name.
func liveCookies(resp *http.Response) []*http.Cookie {
	byName := map[string]*http.Cookie{}
	var order []string
	for _, c := range resp.Cookies() {
		if _, seen := byName[c.Name]; !seen {
			order = append(order, c.Name)
		}
		byName[c.Name] = c
	}
	var out []*http.Cookie
	for _, name := range order {
		if c := byName[name]; c.MaxAge >= 0 {
			out = append(out, c)
		}
	}
	return out
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}

func removals(resp *http.Response, name string) int {
	n := 0
	for _, c := range resp.Cookies() {
		if c.Name == name && c.MaxAge < 0 {
			n++
		}
	}
	return n
}
