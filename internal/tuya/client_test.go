package tuya_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeberg.org/mutker/tuya-exporter/internal/errors"
	"codeberg.org/mutker/tuya-exporter/internal/tuya"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "client-id"
	testSecret   = "client-secret"
)

func newTestClient(t *testing.T, handler http.Handler) (tuya.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := tuya.NewClient("us", testClientID, testSecret, tuya.WithBaseURL(server.URL))
	require.NoError(t, err)

	return client, server
}

// tokenHandler serves the token grant and delegates everything else
func tokenHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1.0/token") {
			w.Write([]byte(`{"success":true,"result":{"access_token":"tok-1","expire_time":7200,"refresh_token":"ref-1","uid":"uid-1"}}`))
			return
		}
		next(w, r)
	}
}

func TestGetDevice(t *testing.T) {
	var gotToken string
	client, _ := newTestClient(t, tokenHandler(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("access_token")
		assert.Equal(t, "/v1.0/devices/bf123", r.URL.Path)
		w.Write([]byte(`{"success":true,"result":{
			"id":"bf123","name":"Bedroom","category":"wsdcg","online":true,"update_time":1700000000,
			"status":[{"code":"va_temperature","value":215},{"code":"battery_state","value":"high"}]}}`))
	}))

	info, err := client.GetDevice(context.Background(), "bf123")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", gotToken)
	assert.Equal(t, "Bedroom", info.Name)
	assert.True(t, info.Online)
	assert.EqualValues(t, 1700000000, info.UpdateTime)
	require.Len(t, info.Status, 2)
	assert.Equal(t, "va_temperature", info.Status[0].Code)
	assert.EqualValues(t, 215.0, info.Status[0].Value)
	assert.Equal(t, "high", info.Status[1].Value)
}

func TestRequestSignature(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testClientID, r.Header.Get("client_id"))
		assert.Equal(t, "HMAC-SHA256", r.Header.Get("sign_method"))
		require.NotEmpty(t, r.Header.Get("t"))

		// Recompute the expected signature from the received timestamp
		bodyHash := sha256.Sum256(nil)
		stringToSign := "GET\n" + hex.EncodeToString(bodyHash[:]) + "\n\n" + r.URL.Path + tokenQuery(r)
		mac := hmac.New(sha256.New, []byte(testSecret))
		mac.Write([]byte(testClientID + r.Header.Get("access_token") + r.Header.Get("t") + stringToSign))
		expected := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

		assert.Equal(t, expected, r.Header.Get("sign"))

		if strings.HasPrefix(r.URL.Path, "/v1.0/token") {
			w.Write([]byte(`{"success":true,"result":{"access_token":"tok-1","expire_time":7200}}`))
			return
		}
		w.Write([]byte(`{"success":true,"result":{"id":"bf123"}}`))
	}))

	_, err := client.GetDevice(context.Background(), "bf123")
	require.NoError(t, err)
}

func tokenQuery(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return ""
	}
	return "?" + r.URL.RawQuery
}

func TestTokenReuse(t *testing.T) {
	tokenRequests := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1.0/token") {
			tokenRequests++
			w.Write([]byte(`{"success":true,"result":{"access_token":"tok-1","expire_time":7200}}`))
			return
		}
		w.Write([]byte(`{"success":true,"result":{"id":"bf123"}}`))
	}))

	ctx := context.Background()
	_, err := client.GetDevice(ctx, "bf123")
	require.NoError(t, err)
	_, err = client.GetDevice(ctx, "bf123")
	require.NoError(t, err)

	assert.Equal(t, 1, tokenRequests, "token should be cached across requests")
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected errors.ErrorCode
	}{
		{"http unauthorized", http.StatusUnauthorized, "", tuya.ErrAuth},
		{"http forbidden", http.StatusForbidden, "", tuya.ErrAuth},
		{"http not found", http.StatusNotFound, "", tuya.ErrDeviceNotFound},
		{"http rate limited", http.StatusTooManyRequests, "", tuya.ErrRateLimited},
		{"http server error", http.StatusBadGateway, "", tuya.ErrNetwork},
		{"undecodable body", http.StatusOK, "not json", tuya.ErrMalformedResponse},
		{"business token invalid", http.StatusOK, `{"success":false,"code":1010,"msg":"token invalid"}`, tuya.ErrAuth},
		{"business sign invalid", http.StatusOK, `{"success":false,"code":1004,"msg":"sign invalid"}`, tuya.ErrAuth},
		{"business device missing", http.StatusOK, `{"success":false,"code":2007,"msg":"device removed"}`, tuya.ErrDeviceNotFound},
		{"business unexpected code", http.StatusOK, `{"success":false,"code":500,"msg":"boom"}`, tuya.ErrMalformedResponse},
		{"null result", http.StatusOK, `{"success":true,"result":null}`, tuya.ErrMalformedResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, tokenHandler(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))

			_, err := client.GetDevice(context.Background(), "bf123")
			require.Error(t, err)
			assert.Equal(t, tc.expected, errors.CodeOf(err))
		})
	}
}

func TestTokenRequestAuthFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":false,"code":1001,"msg":"secret invalid"}`))
	}))

	_, err := client.GetDevice(context.Background(), "bf123")
	require.Error(t, err)
	assert.Equal(t, tuya.ErrAuth, errors.CodeOf(err))
}

func TestTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := tuya.NewClient("us", testClientID, testSecret, tuya.WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.GetDevice(context.Background(), "bf123")
	require.Error(t, err)
	assert.Equal(t, tuya.ErrNetwork, errors.CodeOf(err))
}

func TestInvalidRegion(t *testing.T) {
	_, err := tuya.NewClient("atlantis", "id", "secret")
	require.Error(t, err)
	assert.Equal(t, tuya.ErrInvalidConfig, errors.CodeOf(err))
}
