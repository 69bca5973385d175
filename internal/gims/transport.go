package gims

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gelarm/gims-automation-mcp-server/internal/auth"
	"github.com/gelarm/gims-automation-mcp-server/internal/metrics"
)

// Response is a completed, successful GIMS call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into out. An empty body leaves out untouched.
func (r *Response) JSON(out any) error {
	if len(r.Body) == 0 || r.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Refresher is the part of the refresh gate the transport needs.
type Refresher interface {
	Refresh(ctx context.Context, staleAccess string) (auth.Credentials, error)
}

// NewHTTPClients builds the request client (bounded by timeout) and the
// streaming client (no overall timeout) sharing one TLS configuration.
func NewHTTPClients(verifyTLS bool, timeout time.Duration) (api, stream *http.Client) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Transport: tr, Timeout: timeout}, &http.Client{Transport: tr}
}

// Transport issues bearer-authenticated calls against the GIMS API and
// transparently survives access-token expiry. A 401 triggers one refresh
// through the gate and one retry of the original request; nothing else is
// retried here.
type Transport struct {
	logger  *zap.Logger
	baseURL string
	store   *auth.Store
	gate    Refresher
	api     *http.Client
	stream  *http.Client
}

// NewTransport creates a transport rooted at baseURL (the automation API root).
func NewTransport(logger *zap.Logger, baseURL string, store *auth.Store, gate Refresher, api, stream *http.Client) *Transport {
	return &Transport{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		gate:    gate,
		api:     api,
		stream:  stream,
	}
}

func (t *Transport) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.baseURL + path
}

// Execute performs method on path with an optional JSON body.
func (t *Transport) Execute(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = data
	}

	creds := t.store.Snapshot()
	resp, err := t.do(ctx, method, path, payload, creds.AccessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		fresh, err := t.gate.Refresh(ctx, creds.AccessToken)
		if err != nil {
			return nil, t.refreshError(err)
		}
		resp, err = t.do(ctx, method, path, payload, fresh.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := classify(resp.StatusCode, resp.Body)
		t.logger.Debug("gims.http_error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(apiErr.Kind)))
		return nil, apiErr
	}
	return resp, nil
}

func (t *Transport) refreshError(err error) error {
	if errors.Is(err, auth.ErrAuthExpired) {
		return authExpiredError(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &APIError{
		Kind:    KindTransient,
		Status:  http.StatusUnauthorized,
		Message: "Token refresh failed",
		Detail:  err.Error(),
		Err:     err,
	}
}

func (t *Transport) do(ctx context.Context, method, path string, payload []byte, token string) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.resolve(path), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.api.Do(req)
	metrics.ObserveDuration(metrics.GIMSRequestDuration, start, method)
	if err != nil {
		metrics.IncGIMSRequest(method, "error")
		t.logger.Warn("gims.http_failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, networkError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncGIMSRequest(method, "error")
		return nil, networkError(fmt.Errorf("read response body: %w", err))
	}
	metrics.IncGIMSRequest(method, strconv.Itoa(resp.StatusCode))

	t.logger.Debug("gims.http_done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Stream opens a long-lived GET on rawURL for server-sent events. The caller
// owns the returned body and must close it. The request is bounded only by
// ctx, never by the API client timeout.
func (t *Transport) Stream(ctx context.Context, rawURL string) (*http.Response, error) {
	creds := t.store.Snapshot()
	resp, err := t.openStream(ctx, rawURL, creds.AccessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		fresh, err := t.gate.Refresh(ctx, creds.AccessToken)
		if err != nil {
			return nil, t.refreshError(err)
		}
		resp, err = t.openStream(ctx, rawURL, fresh.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close() //nolint:errcheck
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classify(resp.StatusCode, body)
	}
	return resp, nil
}

func (t *Transport) openStream(ctx context.Context, rawURL, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.resolve(rawURL), nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.stream.Do(req)
	if err != nil {
		t.logger.Warn("gims.stream_open_failed", zap.String("url", rawURL), zap.Error(err))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, networkError(err)
	}
	metrics.IncGIMSRequest("STREAM", strconv.Itoa(resp.StatusCode))
	return resp, nil
}
