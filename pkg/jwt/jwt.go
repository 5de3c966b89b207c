package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
)

var (
	ErrInvalidSigningMethod = errors.New("unexpected signing method")
	ErrInvalidToken         = errors.New("invalid token")
	ErrWrongTokenType       = errors.New("wrong token type")
)

// TokenService signs and verifies the RS256 tokens shared by the vibz.world
// services. Sibling services verify with the key published at the JWKS
// endpoint.
type TokenService struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	keyID         string
	// retired keys still verify tokens signed before a rotation
	retired map[string]*rsa.PublicKey
	now     func() time.Time
}

// PublicKey is one verification key as published in the JWKS document.
type PublicKey struct {
	ID  string
	Key *rsa.PublicKey
}

func NewTokenService(privateKeyPEM, publicKeyPEM []byte, accessExpiry, refreshExpiry time.Duration, issuer string) (*TokenService, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &TokenService{
		privateKey:    privateKey,
		publicKey:     publicKey,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		issuer:        issuer,
		now:           time.Now,
	}, nil
}

// GenerateTokenPair issues an access and a refresh token bound to sessionID.
func (s *TokenService) GenerateTokenPair(account *domain.Account, sessionID uuid.UUID) (*domain.TokenPair, error) {
	now := s.now()
	accessExp := now.Add(s.accessExpiry)

	accessToken, err := s.sign(domain.Claims{
		RegisteredClaims: s.registered(account.ID, now, accessExp),
		UserID:           account.ID,
		Email:            account.Email,
		SessionID:        sessionID,
		TokenType:        domain.TokenTypeAccess,
	})
	if err != nil {
		return nil, err
	}

	// Refresh token carries no email
	refreshToken, err := s.sign(domain.Claims{
		RegisteredClaims: s.registered(account.ID, now, now.Add(s.refreshExpiry)),
		UserID:           account.ID,
		SessionID:        sessionID,
		TokenType:        domain.TokenTypeRefresh,
	})
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
		TokenType:    "Bearer",
	}, nil
}

func (s *TokenService) ValidateToken(tokenString string) (*domain.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &domain.Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidSigningMethod
		}
		if kid, _ := token.Header["kid"].(string); kid != "" && kid != s.keyID {
			if key, ok := s.retired[kid]; ok {
				return key, nil
			}
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*domain.Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateTokenOfType validates the token and checks its type claim.
func (s *TokenService) ValidateTokenOfType(tokenString, tokenType string) (*domain.Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// GetPublicKey returns the RSA public key for the JWKS endpoint
func (s *TokenService) GetPublicKey() *rsa.PublicKey {
	return s.publicKey
}

func (s *TokenService) registered(subject uuid.UUID, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject.String(),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ID:        uuid.New().String(),
	}
}

// KeyID returns the kid stamped into new tokens.
func (s *TokenService) KeyID() string {
	return s.keyID
}

// AddRetiredKey keeps accepting tokens signed by a previous key under kid
// and publishes it next to the current one.
func (s *TokenService) AddRetiredKey(kid string, publicKeyPEM []byte) error {
	if kid == "" || kid == s.keyID {
		return fmt.Errorf("retired key needs its own kid, got %q", kid)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return fmt.Errorf("failed to parse retired public key: %w", err)
	}
	if s.retired == nil {
		s.retired = make(map[string]*rsa.PublicKey)
	}
	s.retired[kid] = key
	return nil
}

// PublishedKeys lists the current key first, then retired keys by kid.
func (s *TokenService) PublishedKeys() []PublicKey {
	keys := []PublicKey{{ID: s.keyID, Key: s.publicKey}}
	ids := make([]string, 0, len(s.retired))
	for kid := range s.retired {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	for _, kid := range ids {
		keys = append(keys, PublicKey{ID: kid, Key: s.retired[kid]})
	}
	return keys
}

// SetKeyID stamps kid into the header of every token signed afterwards so
// verifiers can pick the key from the JWKS document.
func (s *TokenService) SetKeyID(kid string) {
	s.keyID = kid
}

func (s *TokenService) sign(claims domain.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}
