package handler

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"

	"github.com/gofiber/fiber/v2"

	"github.com/MatsTornblom/Vibzprofile/pkg/jwt"
)

// KeySet lists the keys sibling services may verify tokens with.
type KeySet interface {
	PublishedKeys() []jwt.PublicKey
}

type JWKSHandler struct {
	document JWKS
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is an RSA public key that sibling subdomain services use to verify
// the shared access token.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewJWKSHandler renders the key set once. Keys without an id are
// published under their RFC 7638 thumbprint, and a kid listed twice is
// published once.
func NewJWKSHandler(keys KeySet) *JWKSHandler {
	h := &JWKSHandler{document: JWKS{Keys: []JWK{}}}
	seen := make(map[string]bool)
	for _, key := range keys.PublishedKeys() {
		if key.Key == nil {
			continue
		}
		jwk := rsaJWK(key.Key)
		jwk.Kid = key.ID
		if jwk.Kid == "" {
			jwk.Kid = thumbprint(jwk)
		}
		if seen[jwk.Kid] {
			continue
		}
		seen[jwk.Kid] = true
		h.document.Keys = append(h.document.Keys, jwk)
	}
	return h
}

// GetJWKS publishes the token verification keys
// GET /.well-known/jwks.json
func (h *JWKSHandler) GetJWKS(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.JSON(h.document)
}

func rsaJWK(key *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

func thumbprint(jwk JWK) string {
	// Required members in lexical order
	canonical, _ := json.Marshal(struct {
		E   string `json:"e"`
		Kty string `json:"kty"`
		N   string `json:"n"`
	}{jwk.E, jwk.Kty, jwk.N})
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
