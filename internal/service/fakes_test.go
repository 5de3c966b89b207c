package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
	"github.com/MatsTornblom/Vibzprofile/pkg/email"
	"github.com/MatsTornblom/Vibzprofile/pkg/jwt"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			AccessTokenExpiry:  time.Hour,
			RefreshTokenExpiry: 24 * time.Hour,
			Issuer:             "vibz-test",
		},
		Auth: config.AuthConfig{
			MaxFailedLogins:   3,
			LockDuration:      15 * time.Minute,
			MinPasswordLength: 6,
		},
		Cookie: config.CookieConfig{
			RootDomain:  ".vibz.world",
			SessionName: "vibz-auth-token",
		},
		Checkout: config.CheckoutConfig{
			PriceID:             "price_vibz_pack",
			Mode:                "payment",
			PackAmount:          1000,
			FreeGrantAmount:     100,
			StripeWebhookSecret: "whsec_test",
		},
		Storage: config.StorageConfig{
			MaxAvatarBytes: 5 * 1024 * 1024,
		},
	}
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func newTokenService(t *testing.T, accessExpiry time.Duration) *jwt.TokenService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	tokens, err := jwt.NewTokenService(privPEM, pubPEM, accessExpiry, 24*time.Hour, "vibz-test")
	require.NoError(t, err)
	return tokens
}

// memProfileRepo is an in-memory users table.
type memProfileRepo struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]domain.UserProfile
	creates  int
	upserts  int
	balances int

	getErr    error
	upsertErr error
	incErr    error
	onGet     func()
	// failedReads makes that many GetBalance calls fail
	failedReads int
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{rows: make(map[uuid.UUID]domain.UserProfile)}
}

func (r *memProfileRepo) put(p domain.UserProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = p
}

func (r *memProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	if r.onGet != nil {
		r.onGet()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
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
	r.creates++
	r.rows[profile.ID] = *profile
	return true, nil
}

func (r *memProfileRepo) UpsertEditable(_ context.Context, profile *domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts++
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
	if r.incErr != nil {
		return r.incErr
	}
	row, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
	}
	row.VibzBalance += amount
	r.rows[id] = row
	return nil
}

func (r *memProfileRepo) GetBalance(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances++
	if r.failedReads > 0 {
		r.failedReads--
		return 0, errors.New("read timed out")
	}
	row, ok := r.rows[id]
	if !ok {
		return 0, fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
	}
	return row.VibzBalance, nil
}

// memAccountRepo is an in-memory accounts table.
type memAccountRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{rows: make(map[uuid.UUID]domain.Account)}
}

func (r *memAccountRepo) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.Email == account.Email {
			return fmt.Errorf("account %s: %w", account.Email, repository.ErrAlreadyExists)
		}
	}
	r.rows[account.ID] = *account
	return nil
}

func (r *memAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *memAccountRepo) GetByEmail(_ context.Context, emailAddr string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.Email == emailAddr {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memAccountRepo) Update(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[account.ID] = *account
	return nil
}

func (r *memAccountRepo) UpdateLastSignIn(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.rows[id]
	a.LastSignInAt = &at
	r.rows[id] = a
	return nil
}

func (r *memAccountRepo) IncrementFailedLogins(_ context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.rows[id]
	a.FailedLogins++
	r.rows[id] = a
	return a.FailedLogins, nil
}

func (r *memAccountRepo) ResetFailedLogins(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.rows[id]
	a.FailedLogins = 0
	r.rows[id] = a
	return nil
}

// memSessionRepo is an in-memory sessions table.
type memSessionRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{rows: make(map[uuid.UUID]domain.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = *s
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *memSessionRepo) GetByToken(_ context.Context, tokenHash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.RefreshTokenHash == tokenHash {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSessionRepo) GetByAccountID(_ context.Context, accountID uuid.UUID) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.rows {
		if s.AccountID == accountID {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) Update(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = *s
	return nil
}

func (r *memSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memSessionRepo) DeleteByToken(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.rows {
		if s.RefreshTokenHash == tokenHash {
			delete(r.rows, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memSessionRepo) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// mapJar is a cookie jar holding one value per name.
type mapJar struct {
	values  map[string]string
	written []*http.Cookie
}

func newMapJar() *mapJar {
	return &mapJar{values: make(map[string]string)}
}

func (j *mapJar) Cookie(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

func (j *mapJar) SetCookie(c *http.Cookie) {
	j.written = append(j.written, c)
	if c.MaxAge < 0 {
		delete(j.values, c.Name)
		return
	}
	j.values[c.Name] = c.Value
}

// recordingMailer keeps every email sent.
type recordingMailer struct {
	mu       sync.Mutex
	welcome  []string
	receipts []email.Receipt
	to       []string
}

func (m *recordingMailer) SendWelcomeEmail(_ context.Context, to, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcome = append(m.welcome, to)
	return nil
}

func (m *recordingMailer) SendPurchaseReceipt(_ context.Context, to, _ string, receipt email.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = append(m.to, to)
	m.receipts = append(m.receipts, receipt)
	return nil
}

func strPtr(s string) *string { return &s }
