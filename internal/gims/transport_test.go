package gims

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gelarm/gims-automation-mcp-server/internal/auth"
)

const authExpiredText = "Ошибка аутентификации: токен обновления недействителен. Проверьте учётную запись и получите новые токены в GIMS."

type fixture struct {
	srv       *httptest.Server
	store     *auth.Store
	transport *Transport
	refreshes atomic.Int32
}

// newFixture serves the refresh endpoint and routes /automation/* to api.
// refresh decides the refresh endpoint's answer.
func newFixture(t *testing.T, api http.HandlerFunc, refresh http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		f.refreshes.Add(1)
		refresh(w, r)
	})
	mux.HandleFunc("/automation/", api)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.store = auth.NewStore(auth.Credentials{AccessToken: "old", RefreshToken: "refresh-1"})
	apiClient, streamClient := NewHTTPClients(true, 5*time.Second)
	refresher := auth.NewHTTPRefresher(zap.NewNop(), apiClient, f.srv.URL+"/api/token/refresh/")
	gate := auth.NewGate(zap.NewNop(), f.store, refresher)
	f.transport = NewTransport(zap.NewNop(), f.srv.URL+"/automation", f.store, gate, apiClient, streamClient)
	return f
}

func refreshOK(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "new", "refresh_token": "refresh-2"})
}

func refreshRejected(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"detail":"Token is invalid or expired","code":"token_not_valid"}`))
}

// ─── Happy path ───────────────────────────────────────────────────────────────

func TestExecute_AttachesBearerAndBody(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer old", r.Header.Get("Authorization"))
		assert.Equal(t, "/automation/scripts/script/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"s1"}`, string(b))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7,"name":"s1"}`))
	}, refreshOK)

	resp, err := f.transport.Execute(context.Background(), http.MethodPost, PathScripts, map[string]string{"name": "s1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out Object
	require.NoError(t, resp.JSON(&out))
	assert.EqualValues(t, 7, out["id"])
	assert.Zero(t, f.refreshes.Load())
}

// ─── 401 → refresh → retry ────────────────────────────────────────────────────

func TestExecute_RefreshesAndRetriesOnce(t *testing.T) {
	var attempts atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}, refreshOK)

	resp, err := f.transport.Execute(context.Background(), http.MethodGet, PathScripts, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, attempts.Load())
	assert.EqualValues(t, 1, f.refreshes.Load())
	assert.Equal(t, auth.Credentials{AccessToken: "new", RefreshToken: "refresh-2"}, f.store.Snapshot())
}

func TestExecute_RetryResultReturnedEvenIfUnauthorized(t *testing.T) {
	var attempts atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, refreshOK)

	_, err := f.transport.Execute(context.Background(), http.MethodGet, PathScripts, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 2, attempts.Load(), "original plus exactly one retry")
	assert.EqualValues(t, 1, f.refreshes.Load())
}

func TestExecute_ConcurrentExpiryRefreshesOnce(t *testing.T) {
	const n = 16
	var oldHits, newHits atomic.Int32
	allSeen := make(chan struct{})
	var once sync.Once

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer new" {
			newHits.Add(1)
			_, _ = w.Write([]byte(`[]`))
			return
		}
		if oldHits.Add(1) == n {
			once.Do(func() { close(allSeen) })
		}
		w.WriteHeader(http.StatusUnauthorized)
	}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-allSeen:
		case <-time.After(2 * time.Second):
		}
		refreshOK(w, r)
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.transport.Execute(context.Background(), http.MethodGet, PathScripts, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.refreshes.Load(), "exactly one refresh call")
	assert.EqualValues(t, n, oldHits.Load())
	assert.EqualValues(t, n, newHits.Load(), "each request retried exactly once")
}

// ─── Permanent auth failure ───────────────────────────────────────────────────

func TestExecute_RefreshRejectedIsAuthExpired(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, refreshRejected)

	for i := 0; i < 3; i++ {
		_, err := f.transport.Execute(context.Background(), http.MethodGet, PathScripts, nil)
		require.ErrorIs(t, err, ErrAuthExpired)
		require.ErrorIs(t, err, auth.ErrAuthExpired)
		assert.Equal(t, authExpiredText, err.Error())
	}
	assert.EqualValues(t, 1, f.refreshes.Load(), "rejected refresh token is never retried")
}

func TestExecute_RefreshTransientFailure(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := f.transport.Execute(context.Background(), http.MethodGet, PathScripts, nil)
	require.ErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrAuthExpired)
}

// ─── Classification ───────────────────────────────────────────────────────────

func TestExecute_Classification(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   error
		detail string
	}{
		{http.StatusNotFound, `{"detail":"No Script matches the given query."}`, ErrNotFound, "No Script matches the given query."},
		{http.StatusNotFound, ``, ErrNotFound, "The requested resource was not found"},
		{http.StatusForbidden, ``, ErrForbidden, "Insufficient permissions for this operation"},
		{http.StatusBadRequest, `{"name":["This field is required."]}`, ErrValidation, `{"name":["This field is required."]}`},
		{http.StatusUnprocessableEntity, `bad input`, ErrValidation, "bad input"},
		{http.StatusInternalServerError, `boom`, ErrTransient, "boom"},
		{http.StatusServiceUnavailable, ``, ErrTransient, ""},
		{http.StatusTooManyRequests, ``, ErrTransient, ""},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var hits atomic.Int32
			f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, refreshOK)

			_, err := f.transport.Execute(context.Background(), http.MethodGet, PathScripts, nil)
			require.ErrorIs(t, err, tt.kind)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.detail, apiErr.Detail)
			assert.EqualValues(t, 1, hits.Load(), "no transport-level retry")
			assert.Zero(t, f.refreshes.Load())
		})
	}
}

func TestExecute_NetworkErrorIsTransient(t *testing.T) {
	f := newFixture(t, func(http.ResponseWriter, *http.Request) {}, refreshOK)
	f.srv.Close()

	_, err := f.transport.Execute(context.Background(), http.MethodGet, PathScripts, nil)
	require.ErrorIs(t, err, ErrTransient)
	assert.True(t, IsTransient(err))
}

// ─── Streaming ────────────────────────────────────────────────────────────────

func TestStream_RefreshesOn401(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: hello\n\n"))
	}, refreshOK)

	resp, err := f.transport.Stream(context.Background(), f.srv.URL+"/automation/logs/stream/1")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "data: hello\n\n", string(b))
	assert.EqualValues(t, 1, f.refreshes.Load())
}

func TestStream_ErrorStatus(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, refreshOK)

	_, err := f.transport.Stream(context.Background(), "/logs/stream/404")
	require.ErrorIs(t, err, ErrNotFound)
}
