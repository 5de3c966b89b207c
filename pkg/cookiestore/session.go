package cookiestore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
)

var ErrMalformedSession = errors.New("malformed session cookie")

// EncodeSession serializes a session for the session cookie.
func EncodeSession(session *domain.AuthSession) (string, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return "base64-" + base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeSession parses a value written by EncodeSession.
func DecodeSession(value string) (*domain.AuthSession, error) {
	const prefix = "base64-"
	if len(value) <= len(prefix) || value[:len(prefix)] != prefix {
		return nil, ErrMalformedSession
	}

	payload, err := base64.RawURLEncoding.DecodeString(value[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}

	var session domain.AuthSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		return nil, ErrMalformedSession
	}
	return &session, nil
}
