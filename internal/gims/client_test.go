package gims

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gelarm/gims-automation-mcp-server/internal/httpclient"
)

func newTestClient(t *testing.T, api http.HandlerFunc) *Client {
	t.Helper()
	f := newFixture(t, api, refreshOK)
	return NewClient(f.transport, httpclient.New(zap.NewNop(), nil, 2, "gims", IsTransient))
}

func TestClient_ListWithQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/automation/datasource_types/properties/", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("mds_type_id"))
		_, _ = w.Write([]byte(`[{"id":1,"name":"host"},{"id":2,"name":"port"}]`))
	})

	items, err := c.List(context.Background(), PathDSTypeProperties, url.Values{"mds_type_id": {"42"}})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "port", items[1]["name"])
}

func TestClient_ListUnwrapsPagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"count":1,"results":[{"id":5}]}`))
	})

	items, err := c.List(context.Background(), PathScripts, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.EqualValues(t, 5, items[0]["id"])
}

func TestClient_GetRetriesTransient(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/automation/scripts/script/9/", r.URL.Path)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":9,"name":"s"}`))
	})

	obj, err := c.Get(context.Background(), PathScripts, 9)
	require.NoError(t, err)
	assert.Equal(t, "s", obj["name"])
	assert.EqualValues(t, 2, hits.Load())
}

func TestClient_GetNotFoundNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), PathScripts, 9)
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 1, hits.Load())
}

func TestClient_WritesAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Create(context.Background(), PathScripts, Object{"name": "x"})
	require.ErrorIs(t, err, ErrTransient)
	assert.EqualValues(t, 1, hits.Load())
}

func TestClient_UpdateAndDelete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			assert.Equal(t, "/automation/activator_types/activator_type/3/", r.URL.Path)
			_, _ = w.Write([]byte(`{"id":3,"name":"renamed"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	obj, err := c.Update(context.Background(), PathActivatorTypes, 3, Object{"name": "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", obj["name"])

	require.NoError(t, c.Delete(context.Background(), PathActivatorTypes, 3))
}

func TestClient_SearchScriptsParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/automation/scripts/search_code/", r.URL.Path)
		assert.Equal(t, "print(", q.Get("search_code"))
		assert.Equal(t, "true", q.Get("case_sensitive"))
		assert.Equal(t, "false", q.Get("exact_match"))
		_, _ = w.Write([]byte(`[]`))
	})

	items, err := c.SearchScripts(context.Background(), "print(", true, false)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClient_ScriptLogURLForms(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json string", `"/logs/stream/script_12.log"`, "/logs/stream/script_12.log"},
		{"url field", `{"url":"https://gims.example.com/logs/12"}`, "https://gims.example.com/logs/12"},
		{"log_url field", `{"log_url":"/logs/12"}`, "/logs/12"},
		{"plain text", `https://gims.example.com/logs/12`, "https://gims.example.com/logs/12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/automation/scripts/script_log_url/12/", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.ScriptLogURL(context.Background(), 12)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ScriptLogURLNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.ScriptLogURL(context.Background(), 77)
	require.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Script with ID 77 not found", apiErr.Detail)
}
