// Package tools exposes GIMS automation resources as MCP tools.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/gelarm/gims-automation-mcp-server/internal/gims"
	"github.com/gelarm/gims-automation-mcp-server/internal/logstream"
	"github.com/gelarm/gims-automation-mcp-server/internal/metrics"
	"github.com/gelarm/gims-automation-mcp-server/pkg/secrets"
)

// ReferenceTTL bounds how long the static reference tables are served from memory.
const ReferenceTTL = 10 * time.Minute

// API is the part of the GIMS client the tools use.
type API interface {
	List(ctx context.Context, collection string, query url.Values) ([]gims.Object, error)
	Get(ctx context.Context, collection string, id int) (gims.Object, error)
	Create(ctx context.Context, collection string, body gims.Object) (gims.Object, error)
	Update(ctx context.Context, collection string, id int, body gims.Object) (gims.Object, error)
	Delete(ctx context.Context, collection string, id int) error
	SearchScripts(ctx context.Context, query string, caseSensitive, exactMatch bool) ([]gims.Object, error)
}

// LogCollector runs one log stream session.
type LogCollector interface {
	Run(ctx context.Context, req logstream.Request) (*logstream.Result, error)
}

// Tool pairs an MCP tool definition with its handler.
type Tool struct {
	Definition mcp.Tool
	Handle     server.ToolHandlerFunc
}

// Handlers serves every GIMS tool.
type Handlers struct {
	logger   *zap.Logger
	api      API
	logs     LogCollector
	maxBytes int
	refs     *secrets.Cache[[]gims.Object]
}

// New creates the tool handlers. maxBytes caps every JSON payload returned
// to the client.
func New(logger *zap.Logger, api API, logs LogCollector, maxBytes int) *Handlers {
	return &Handlers{
		logger:   logger,
		api:      api,
		logs:     logs,
		maxBytes: maxBytes,
		refs:     secrets.NewCache[[]gims.Object](ReferenceTTL),
	}
}

// CleanReferences evicts expired reference tables every interval until stop
// is closed.
func (h *Handlers) CleanReferences(interval time.Duration, stop <-chan struct{}) {
	h.refs.StartCleaner(interval, stop)
}

// Tools lists every tool in registration order.
func (h *Handlers) Tools() []Tool {
	var all []Tool
	all = append(all, h.scriptTools()...)
	all = append(all, h.datasourceTypeTools()...)
	all = append(all, h.activatorTypeTools()...)
	all = append(all, h.referenceTools()...)
	all = append(all, h.logTools()...)
	return all
}

// Register adds every tool to s.
func (h *Handlers) Register(s *server.MCPServer) {
	for _, t := range h.Tools() {
		s.AddTool(t.Definition, t.Handle)
	}
}

// handlerFunc returns either a plain message (string) or a value rendered as
// indented JSON.
type handlerFunc func(ctx context.Context, req mcp.CallToolRequest) (any, error)

func (h *Handlers) tool(def mcp.Tool, fn handlerFunc) Tool {
	name := def.Name
	return Tool{
		Definition: def,
		Handle: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out, err := fn(ctx, req)
			if err != nil {
				return h.fail(name, err), nil
			}
			if msg, ok := out.(string); ok {
				return mcp.NewToolResultText(msg), nil
			}
			text, err := h.render(name, out)
			if err != nil {
				return h.fail(name, err), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	}
}

// render serializes v and applies the response size limit.
func (h *Handlers) render(name string, v any) (string, error) {
	data, err := marshalIndent(v)
	if err != nil {
		return "", fmt.Errorf("encode %s response: %w", name, err)
	}
	data, err = gims.Enforce(data, h.maxBytes)
	if err != nil {
		metrics.IncResponseTooLarge(name)
		return "", err
	}
	return string(data), nil
}

// marshalIndent encodes v as indented JSON with code characters such as
// < > & left unescaped.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (h *Handlers) fail(name string, err error) *mcp.CallToolResult {
	h.logger.Warn("tools.call_failed", zap.String("tool", name), zap.Error(err))
	return mcp.NewToolResultError(errorText(err))
}

// errorText renders err for the client: API errors carry their detail.
func errorText(err error) string {
	var apiErr *gims.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Detail == "" {
			return "Error: " + apiErr.Message
		}
		return "Error: " + apiErr.Message + "\nDetail: " + apiErr.Detail
	}
	return "Error: " + err.Error()
}

// pick copies the arguments named in keys that the caller actually sent.
func pick(args map[string]any, keys ...string) gims.Object {
	out := gims.Object{}
	for _, k := range keys {
		if v, ok := args[k]; ok {
			out[k] = v
		}
	}
	return out
}

// rename moves key from to key to when present.
func rename(obj gims.Object, from, to string) gims.Object {
	if v, ok := obj[from]; ok {
		delete(obj, from)
		obj[to] = v
	}
	return obj
}

// intField reads a numeric field of a decoded JSON object.
func intField(obj gims.Object, key string) (int, bool) {
	switch v := obj[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// withoutCode drops the code field from every object.
func withoutCode(items []gims.Object) []gims.Object {
	out := make([]gims.Object, 0, len(items))
	for _, it := range items {
		c := make(gims.Object, len(it))
		for k, v := range it {
			if k != "code" {
				c[k] = v
			}
		}
		out = append(out, c)
	}
	return out
}

func idQuery(key string, id int) url.Values {
	return url.Values{key: {fmt.Sprint(id)}}
}

func idArg(name, desc string) mcp.ToolOption {
	return mcp.WithNumber(name, mcp.Required(), mcp.Description(desc))
}

func searchTool(name, desc, searchInDesc string, scopes ...string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(desc),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query (substring or regex)")),
		mcp.WithString("search_in", mcp.Description(searchInDesc), mcp.Enum(scopes...)),
		mcp.WithBoolean("case_sensitive", mcp.Description("Case-sensitive search (default: false)")),
	)
}

// folderTools builds the four folder CRUD tools for one folder collection.
func (h *Handlers) folderTools(prefix, label, collection string) []Tool {
	return []Tool{
		h.tool(mcp.NewTool("list_"+prefix+"_folders",
			mcp.WithDescription("List all "+label+" folders with their hierarchy paths"),
		), func(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
			folders, err := h.api.List(ctx, collection, nil)
			if err != nil {
				return nil, err
			}
			return map[string]any{"folders": BuildFolderPaths(folders)}, nil
		}),
		h.tool(mcp.NewTool("create_"+prefix+"_folder",
			mcp.WithDescription("Create a new "+label+" folder"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Folder name")),
			mcp.WithNumber("parent_folder_id", mcp.Description("Parent folder ID (optional)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return nil, err
			}
			body := pick(req.GetArguments(), "parent_folder_id")
			if body["parent_folder_id"] == nil {
				delete(body, "parent_folder_id")
			}
			body["name"] = name
			return h.api.Create(ctx, collection, body)
		}),
		h.tool(mcp.NewTool("update_"+prefix+"_folder",
			mcp.WithDescription("Update an existing "+label+" folder"),
			idArg("folder_id", "Folder ID to update"),
			mcp.WithString("name", mcp.Description("New folder name")),
			mcp.WithNumber("parent_folder_id", mcp.Description("New parent folder ID")),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("folder_id")
			if err != nil {
				return nil, err
			}
			return h.api.Update(ctx, collection, id, pick(req.GetArguments(), "name", "parent_folder_id"))
		}),
		h.tool(mcp.NewTool("delete_"+prefix+"_folder",
			mcp.WithDescription("Delete a "+label+" folder"),
			idArg("folder_id", "Folder ID to delete"),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("folder_id")
			if err != nil {
				return nil, err
			}
			if err := h.api.Delete(ctx, collection, id); err != nil {
				return nil, err
			}
			return "Folder deleted successfully", nil
		}),
	}
}

// deleteTool builds a delete-by-id tool.
func (h *Handlers) deleteTool(name, desc, collection, idKey, idDesc, done string) Tool {
	return h.tool(mcp.NewTool(name,
		mcp.WithDescription(desc),
		idArg(idKey, idDesc),
	), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		id, err := req.RequireInt(idKey)
		if err != nil {
			return nil, err
		}
		if err := h.api.Delete(ctx, collection, id); err != nil {
			return nil, err
		}
		return done, nil
	})
}

// updateTool builds a PATCH tool sending only the provided fields. The
// folder_id argument is sent under folderKey: types store their folder as
// "folder" while scripts use "folder_id". An empty folderKey sends it as is.
func (h *Handlers) updateTool(def mcp.Tool, collection, idKey, folderKey string, fields ...string) Tool {
	return h.tool(def, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		id, err := req.RequireInt(idKey)
		if err != nil {
			return nil, err
		}
		body := pick(req.GetArguments(), fields...)
		if folderKey != "" {
			rename(body, "folder_id", folderKey)
		}
		return h.api.Update(ctx, collection, id, body)
	})
}
