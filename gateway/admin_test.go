// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddsgate/platform/audit"
)

const testSecret = "admin-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifyAdminToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{
			name:  "valid subject",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ops", "exp": exp}),
			want:  "ops",
		},
		{
			name:  "id claim fallback",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"id": "admin-7", "exp": exp}),
			want:  "admin-7",
		},
		{
			name:    "wrong secret",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "ops", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ops", "exp": time.Now().Add(-time.Minute).Unix()}),
			wantErr: true,
		},
		{
			name:    "unsigned",
			token:   signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "ops"}),
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := verifyAdminToken(tt.token, []byte(testSecret))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/logs/stream?token=from-query", nil)
	assert.Equal(t, "from-query", bearerToken(req))

	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", bearerToken(req))
}

func TestLogStream_NotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/v1/admin/logs/stream", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogStream_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, nil, func(c *Config) { c.JWTSecret = testSecret })
	rec := env.get("/v1/admin/logs/stream", strangerIP)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decode(t, rec)["error"])
}

func TestLogStream_DeliversRecords(t *testing.T) {
	env := newTestEnv(t, nil, func(c *Config) { c.JWTSecret = testSecret })
	gw := httptest.NewServer(env.handler)
	defer gw.Close()

	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ops", "exp": time.Now().Add(time.Hour).Unix()})
	wsURL := "ws" + strings.TrimPrefix(gw.URL, "http") + "/v1/admin/logs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": []string{"Bearer " + token}})
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.srv.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	env.srv.hub.Publish(audit.Record{ClientIP: strangerIP, Endpoint: "/v1/sports/list", Outcome: audit.OutcomeBlocked})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event audit.Event
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, audit.EventNewLog, event.Type)
	assert.Equal(t, strangerIP, event.Data.ClientIP)
	assert.Equal(t, audit.OutcomeBlocked, event.Data.Outcome)
}
