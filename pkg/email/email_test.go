package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewResendEmailService_RequiresConfig(t *testing.T) {
	_, err := NewResendEmailService(&EmailConfig{FromEmail: "a@vibz.world"}, nil)
	assert.Error(t, err)

	_, err = NewResendEmailService(&EmailConfig{APIKey: "re_test"}, nil)
	assert.Error(t, err)
}

func newTestService(t *testing.T, handler http.HandlerFunc) *ResendEmailService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewResendEmailService(&EmailConfig{
		APIKey:     "re_test",
		FromEmail:  "noreply@vibz.world",
		FromName:   "Vibz",
		AccountURL: "https://profile.vibz.world/account",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	svc.client.BaseURL = base
	return svc
}

func TestResendEmailService_SendPurchaseReceipt(t *testing.T) {
	var got map[string]interface{}
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	})

	err := svc.SendPurchaseReceipt(context.Background(), "buyer@vibz.world", "vibe", Receipt{Amount: 1000, Balance: 1100})
	require.NoError(t, err)

	assert.Equal(t, "Vibz <noreply@vibz.world>", got["from"])
	assert.Equal(t, []interface{}{"buyer@vibz.world"}, got["to"])
	assert.Equal(t, "You received 1000 $VIBZ", got["subject"])
	assert.Contains(t, got["html"], "1100 $VIBZ")
}

func TestResendEmailService_SendFailure(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"bad recipient"}`))
	})

	err := svc.SendWelcomeEmail(context.Background(), "nope", "")
	assert.Error(t, err)
}

func TestTemplatesEscapeNames(t *testing.T) {
	out := WelcomeEmailTemplate("<script>", "https://profile.vibz.world/account")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}
