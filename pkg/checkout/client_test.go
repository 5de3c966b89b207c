package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{
	PriceID:    "price_123",
	Mode:       ModePayment,
	SuccessURL: "https://profile.vibz.world/success",
	CancelURL:  "https://profile.vibz.world/cancel",
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, 0)
	require.NoError(t, err)
	return client
}

func TestClient_CreateSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))

		var got map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, map[string]string{
			"price_id":    "price_123",
			"mode":        "payment",
			"success_url": "https://profile.vibz.world/success",
			"cancel_url":  "https://profile.vibz.world/cancel",
		}, got)

		_, _ = w.Write([]byte(`{"url":"https://checkout.stripe.com/c/pay/cs_test"}`))
	})

	session, err := client.CreateSession(context.Background(), "access-token", testParams)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test", session.URL)
}

func TestClient_CreateSession_Non2xxSurfacesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("No such price: 'price_123'"))
	})

	session, err := client.CreateSession(context.Background(), "access-token", testParams)
	assert.Nil(t, session)

	var checkoutErr *Error
	require.True(t, errors.As(err, &checkoutErr))
	assert.Equal(t, http.StatusBadRequest, checkoutErr.StatusCode)
	assert.Equal(t, "No such price: 'price_123'", err.Error())
}

func TestClient_CreateSession_RequiresBearer(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.CreateSession(context.Background(), "", testParams)
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.False(t, called)
}

func TestClient_CreateSession_MissingURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.CreateSession(context.Background(), "access-token", testParams)
	assert.Error(t, err)
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient("", 0)
	assert.Error(t, err)
}
