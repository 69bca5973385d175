package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshResponse accepts both the long and the simplejwt-style short keys.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Access       string `json:"access"`
	Refresh      string `json:"refresh"`
}

// HTTPRefresher calls the GIMS token refresh endpoint.
type HTTPRefresher struct {
	logger *zap.Logger
	client *http.Client
	url    string
}

// NewHTTPRefresher creates a refresher posting to url.
func NewHTTPRefresher(logger *zap.Logger, client *http.Client, url string) *HTTPRefresher {
	return &HTTPRefresher{logger: logger, client: client, url: url}
}

// Refresh exchanges refreshToken for a new pair. A 401, or a 400/403 whose
// body reports an invalid token, is permanent and wraps ErrAuthExpired.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	data, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(data))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if isRejection(resp.StatusCode, body) {
		r.logger.Debug("auth.refresh_status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return Credentials{}, fmt.Errorf("token refresh returned %d: %w", resp.StatusCode, ErrAuthExpired)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Credentials{}, fmt.Errorf("token refresh returned %d", resp.StatusCode)
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Credentials{}, fmt.Errorf("decode refresh response: %w", err)
	}

	creds := Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
	if creds.AccessToken == "" {
		creds.AccessToken = out.Access
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = out.Refresh
	}
	if creds.AccessToken == "" {
		return Credentials{}, errors.New("refresh response has no access token")
	}
	return creds, nil
}

func isRejection(status int, body []byte) bool {
	switch status {
	case http.StatusUnauthorized:
		return true
	case http.StatusBadRequest, http.StatusForbidden:
		lower := strings.ToLower(string(body))
		return strings.Contains(lower, "token_not_valid") ||
			strings.Contains(lower, "invalid") ||
			strings.Contains(lower, "expired")
	}
	return false
}
