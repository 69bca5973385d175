package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRefreshServer(t *testing.T, status int, body string) (*httptest.Server, *string) {
	t.Helper()
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/token/refresh/", r.URL.Path)
		var req refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		got = req.RefreshToken
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestHTTPRefresher_Success(t *testing.T) {
	srv, got := newRefreshServer(t, http.StatusOK, `{"access_token":"a2","refresh_token":"r2"}`)
	r := NewHTTPRefresher(zap.NewNop(), srv.Client(), srv.URL+"/api/token/refresh/")

	creds, err := r.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", *got)
	assert.Equal(t, Credentials{AccessToken: "a2", RefreshToken: "r2"}, creds)
}

func TestHTTPRefresher_ShortKeys(t *testing.T) {
	srv, _ := newRefreshServer(t, http.StatusOK, `{"access":"a2"}`)
	r := NewHTTPRefresher(zap.NewNop(), srv.Client(), srv.URL+"/api/token/refresh/")

	creds, err := r.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", creds.AccessToken)
	assert.Empty(t, creds.RefreshToken, "no rotation reported")
}

func TestHTTPRefresher_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"401", http.StatusUnauthorized, `{"detail":"Token is invalid or expired","code":"token_not_valid"}`, true},
		{"400 invalid token", http.StatusBadRequest, `{"detail":"invalid refresh token"}`, true},
		{"400 other", http.StatusBadRequest, `{"refresh_token":["This field is required."]}`, false},
		{"500", http.StatusInternalServerError, `oops`, false},
		{"200 without token", http.StatusOK, `{}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newRefreshServer(t, tt.status, tt.body)
			r := NewHTTPRefresher(zap.NewNop(), srv.Client(), srv.URL+"/api/token/refresh/")

			_, err := r.Refresh(context.Background(), "r1")
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, ErrAuthExpired))
		})
	}
}
