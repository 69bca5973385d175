package gims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Object is a GIMS entity as returned by the API.
type Object = map[string]any

// Resource paths under the automation API root.
const (
	PathScriptFolders       = "/scripts/folder/"
	PathScripts             = "/scripts/script/"
	PathScriptSearch        = "/scripts/search_code/"
	PathScriptLogURL        = "/scripts/script_log_url/"
	PathDSTypeFolders       = "/datasource_types/folder/"
	PathDSTypes             = "/datasource_types/ds_type/"
	PathDSTypeProperties    = "/datasource_types/properties/"
	PathDSTypeMethods       = "/datasource_types/method/"
	PathMethodParams        = "/datasource_types/method_params/"
	PathActivatorFolders    = "/activator_type/folder/"
	PathActivatorTypes      = "/activator_types/activator_type/"
	PathActivatorProperties = "/activator_types/properties/"
	PathValueTypes          = "/rest/value_types/"
	PathPropertySections    = "/rest/property_sections/"
)

// Executor runs a call with caller-side retries.
type Executor interface {
	Do(ctx context.Context, rateLimitKey string, call func(ctx context.Context) error) error
}

// Client exposes typed GIMS resource operations on top of the Transport.
// Reads go through the executor; writes are issued once.
type Client struct {
	t    *Transport
	exec Executor
}

// NewClient wires a resource client. exec may be nil for single-shot reads.
func NewClient(t *Transport, exec Executor) *Client {
	if exec == nil {
		exec = noRetry{}
	}
	return &Client{t: t, exec: exec}
}

type noRetry struct{}

func (noRetry) Do(ctx context.Context, _ string, call func(ctx context.Context) error) error {
	return call(ctx)
}

func itemPath(collection string, id int) string {
	return collection + strconv.Itoa(id) + "/"
}

// rateKey groups endpoints by their first path segment.
func rateKey(path string) string {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(seg, '/'); i > 0 {
		return seg[:i]
	}
	return seg
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := c.exec.Do(ctx, rateKey(path), func(ctx context.Context) error {
		resp, err := c.t.Execute(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	return body, err
}

// List returns every entity of a collection. query may be nil.
// Paginated envelopes ({"results": [...]}) are unwrapped.
func (c *Client) List(ctx context.Context, collection string, query url.Values) ([]Object, error) {
	path := collection
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	raw, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

func decodeList(raw []byte) ([]Object, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []Object{}, nil
	}
	var items []Object
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var page struct {
		Results []Object `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if page.Results == nil {
		return []Object{}, nil
	}
	return page.Results, nil
}

// Get fetches one entity.
func (c *Client) Get(ctx context.Context, collection string, id int) (Object, error) {
	raw, err := c.get(ctx, itemPath(collection, id))
	if err != nil {
		return nil, err
	}
	var out Object
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// Create posts a new entity.
func (c *Client) Create(ctx context.Context, collection string, body Object) (Object, error) {
	resp, err := c.t.Execute(ctx, http.MethodPost, collection, body)
	if err != nil {
		return nil, err
	}
	var out Object
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update patches the given fields of an entity.
func (c *Client) Update(ctx context.Context, collection string, id int, body Object) (Object, error) {
	resp, err := c.t.Execute(ctx, http.MethodPatch, itemPath(collection, id), body)
	if err != nil {
		return nil, err
	}
	var out Object
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an entity.
func (c *Client) Delete(ctx context.Context, collection string, id int) error {
	_, err := c.t.Execute(ctx, http.MethodDelete, itemPath(collection, id), nil)
	return err
}

// SearchScripts runs the server-side code search.
func (c *Client) SearchScripts(ctx context.Context, query string, caseSensitive, exactMatch bool) ([]Object, error) {
	return c.List(ctx, PathScriptSearch, url.Values{
		"search_code":    {query},
		"case_sensitive": {strconv.FormatBool(caseSensitive)},
		"exact_match":    {strconv.FormatBool(exactMatch)},
	})
}

// ScriptLogURL resolves the SSE log feed address of a script. The backend
// answers with a bare JSON string, an object carrying "url" or "log_url",
// or plain text.
func (c *Client) ScriptLogURL(ctx context.Context, scriptID int) (string, error) {
	raw, err := c.get(ctx, itemPath(PathScriptLogURL, scriptID))
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind == KindNotFound {
			apiErr.Detail = fmt.Sprintf("Script with ID %d not found", scriptID)
		}
		return "", err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var obj struct {
		URL    string `json:"url"`
		LogURL string `json:"log_url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.URL != "" {
			return obj.URL, nil
		}
		if obj.LogURL != "" {
			return obj.LogURL, nil
		}
	}
	if text := strings.TrimSpace(string(raw)); strings.HasPrefix(text, "http") || strings.HasPrefix(text, "/") {
		return text, nil
	}
	return "", errors.New("log url response has no url")
}
